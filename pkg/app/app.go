// Package app assembles widget panels from the loaded configuration.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/realtime-ai/assistant-widget/pkg/config"
	"github.com/realtime-ai/assistant-widget/pkg/i18n"
	"github.com/realtime-ai/assistant-widget/pkg/metrics"
	"github.com/realtime-ai/assistant-widget/pkg/pipeline"
	"github.com/realtime-ai/assistant-widget/pkg/textchat"
	"github.com/realtime-ai/assistant-widget/pkg/voice"
	"github.com/realtime-ai/assistant-widget/pkg/widget"
)

// Deps are the process-wide collaborators shared by every panel.
type Deps struct {
	Log     zerolog.Logger
	Metrics *metrics.Metrics
	// Dialer overrides the Gemini Live dialer, mainly for tests.
	Dialer voice.Dialer
	// Streamers overrides the chat channel factory, mainly for tests.
	Streamers widget.StreamerFactory
}

// ChatAPIKey returns the credential of the configured chat provider.
func ChatAPIKey(cfg config.Config) string {
	if cfg.Chat.Provider == config.ProviderOpenAI {
		return cfg.OpenAIAPIKey()
	}
	return cfg.GeminiAPIKey()
}

// Language returns the configured default UI language.
func Language(cfg config.Config) i18n.Language {
	lang, err := i18n.ParseLanguage(cfg.Widget.DefaultLanguage)
	if err != nil {
		return i18n.DefaultLanguage
	}
	return lang
}

// StreamerFactory builds chat channels for the configured provider, each
// primed with the system prompt of the requested language.
func StreamerFactory(cfg config.Config) widget.StreamerFactory {
	return func(ctx context.Context, lang i18n.Language) (textchat.Streamer, error) {
		prompt := i18n.SystemPrompt(lang)
		switch cfg.Chat.Provider {
		case config.ProviderOpenAI:
			return textchat.NewOpenAIStreamer(textchat.OpenAIConfig{
				APIKey:       cfg.OpenAIAPIKey(),
				BaseURL:      cfg.OpenAI.BaseURL,
				Model:        cfg.OpenAI.Model,
				SystemPrompt: prompt,
				MaxHistory:   cfg.Chat.MaxHistory,
				Timeout:      cfg.OpenAI.Timeout.ToDuration(),
			})
		case config.ProviderGemini, "":
			return textchat.NewGeminiStreamer(ctx, textchat.GeminiConfig{
				APIKey:       cfg.GeminiAPIKey(),
				Model:        cfg.Gemini.TextModel,
				SystemPrompt: prompt,
			})
		default:
			return nil, fmt.Errorf("%w: chat provider %q", config.ErrInvalidConfig, cfg.Chat.Provider)
		}
	}
}

// VoiceConfig maps the audio and Gemini settings onto a voice.Config.
func VoiceConfig(cfg config.Config) voice.Config {
	return voice.Config{
		APIKey:           cfg.GeminiAPIKey(),
		Model:            cfg.Gemini.LiveModel,
		Language:         Language(cfg),
		InputSampleRate:  cfg.Audio.InputRate,
		OutputSampleRate: cfg.Audio.OutputRate,
		FrameSize:        cfg.Audio.FrameSize,
		SendQueue:        cfg.Audio.SendQueue,
	}
}

// NewPanel builds a panel whose voice mode runs on devices. bus may be nil.
func NewPanel(cfg config.Config, deps Deps, devices voice.Devices, bus pipeline.Bus) *widget.Panel {
	streamers := deps.Streamers
	if streamers == nil {
		streamers = StreamerFactory(cfg)
	}
	dialer := deps.Dialer
	if dialer == nil {
		dialer = &voice.GeminiDialer{APIKey: cfg.GeminiAPIKey()}
	}

	opts := []widget.Option{
		widget.WithLogger(deps.Log),
		widget.WithMetrics(deps.Metrics),
		widget.WithStreamerFactory(streamers),
	}
	if bus != nil {
		opts = append(opts, widget.WithBus(bus))
	}
	if devices != nil {
		voiceOpts := []voice.Option{
			voice.WithLogger(deps.Log),
			voice.WithMetrics(deps.Metrics),
		}
		if bus != nil {
			voiceOpts = append(voiceOpts, voice.WithBus(bus))
		}
		opts = append(opts, widget.WithVoiceFactory(
			widget.ManagerFactory(VoiceConfig(cfg), dialer, devices, voiceOpts...),
		))
	}

	return widget.NewPanel(widget.Config{
		APIKey:   ChatAPIKey(cfg),
		Language: Language(cfg),
	}, opts...)
}
