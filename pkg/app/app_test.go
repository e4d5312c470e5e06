package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/assistant-widget/pkg/config"
	"github.com/realtime-ai/assistant-widget/pkg/i18n"
	"github.com/realtime-ai/assistant-widget/pkg/textchat"
	"github.com/realtime-ai/assistant-widget/pkg/widget"
)

func TestChatAPIKeyFollowsProvider(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "o-key")

	cfg := config.Default()
	assert.Equal(t, "g-key", ChatAPIKey(cfg))

	cfg.Chat.Provider = config.ProviderOpenAI
	assert.Equal(t, "o-key", ChatAPIKey(cfg))
}

func TestLanguageFallsBack(t *testing.T) {
	cfg := config.Default()
	cfg.Widget.DefaultLanguage = "en"
	assert.Equal(t, i18n.English, Language(cfg))

	cfg.Widget.DefaultLanguage = "xx"
	assert.Equal(t, i18n.DefaultLanguage, Language(cfg))
}

func TestVoiceConfig(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	cfg := config.Default()
	vc := VoiceConfig(cfg)
	assert.Equal(t, "g-key", vc.APIKey)
	assert.Equal(t, cfg.Gemini.LiveModel, vc.Model)
	assert.Equal(t, 16000, vc.InputSampleRate)
	assert.Equal(t, 24000, vc.OutputSampleRate)
	assert.Equal(t, 4096, vc.FrameSize)
}

func TestStreamerFactoryOpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "o-key")
	cfg := config.Default()
	cfg.Chat.Provider = config.ProviderOpenAI

	s, err := StreamerFactory(cfg)(context.Background(), i18n.English)
	require.NoError(t, err)
	p, ok := s.(textchat.Provider)
	require.True(t, ok)
	assert.Equal(t, "openai", p.Provider())
	assert.Equal(t, cfg.OpenAI.Model, p.Model())
}

func TestStreamerFactoryMissingKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")
	_, err := StreamerFactory(config.Default())(context.Background(), i18n.Arabic)
	assert.ErrorIs(t, err, textchat.ErrNoAPIKey)
}

func TestStreamerFactoryUnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Chat.Provider = "carrier-pigeon"
	_, err := StreamerFactory(cfg)(context.Background(), i18n.English)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewPanelWithoutKeyShowsNotice(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")
	cfg := config.Default()

	p := NewPanel(cfg, Deps{Log: zerolog.Nop()}, nil, nil)
	require.NoError(t, p.Open(context.Background()))
	assert.False(t, p.View().APIReady)
	assert.Equal(t, i18n.Arabic, p.View().Language)
	assert.ErrorIs(t, p.ToggleMode(context.Background()), widget.ErrNotReady)
}

func TestNewPanelWithoutDevicesHasNoVoice(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	cfg := config.Default()

	p := NewPanel(cfg, Deps{
		Log: zerolog.Nop(),
		Streamers: func(context.Context, i18n.Language) (textchat.Streamer, error) {
			return textchat.StreamerFunc(nil), nil
		},
	}, nil, nil)
	require.NoError(t, p.Open(context.Background()))
	assert.True(t, p.View().APIReady)
	assert.ErrorIs(t, p.ToggleMode(context.Background()), widget.ErrVoiceUnavailable)
}
