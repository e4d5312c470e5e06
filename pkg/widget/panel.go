// Package widget holds the chat panel state: open/closed, language, input
// mode and the turn list. It relays typed input to the text chat and
// toggles the voice session.
package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/assistant-widget/pkg/conversation"
	"github.com/realtime-ai/assistant-widget/pkg/i18n"
	"github.com/realtime-ai/assistant-widget/pkg/metrics"
	"github.com/realtime-ai/assistant-widget/pkg/pipeline"
	"github.com/realtime-ai/assistant-widget/pkg/textchat"
	"github.com/realtime-ai/assistant-widget/pkg/voice"
)

var (
	// ErrNotReady is returned for actions that need a configured credential.
	ErrNotReady = errors.New("widget: assistant not configured")
	// ErrVoiceUnavailable is returned when voice mode has no backend.
	ErrVoiceUnavailable = errors.New("widget: voice mode unavailable")
)

// StreamerFactory builds a chat channel primed for lang.
type StreamerFactory func(ctx context.Context, lang i18n.Language) (textchat.Streamer, error)

// VoiceController is the voice session surface the panel drives.
type VoiceController interface {
	Start(ctx context.Context) error
	Stop()
	Active() bool
	SetLanguage(l i18n.Language)
}

// VoiceHooks are the panel callbacks a voice controller must invoke.
type VoiceHooks struct {
	TurnComplete func(user, assistant string)
	Transcript   func(user, assistant string)
	StateChange  func(voice.State)
}

// VoiceFactory builds the voice controller reporting through hooks.
type VoiceFactory func(hooks VoiceHooks) VoiceController

// ManagerFactory returns a VoiceFactory backed by voice.Manager.
func ManagerFactory(cfg voice.Config, dialer voice.Dialer, devices voice.Devices, opts ...voice.Option) VoiceFactory {
	return func(h VoiceHooks) VoiceController {
		all := append([]voice.Option{}, opts...)
		all = append(all,
			voice.OnTurnComplete(h.TurnComplete),
			voice.OnTranscript(h.Transcript),
			voice.OnStateChange(h.StateChange),
		)
		return voice.NewManager(cfg, dialer, devices, all...)
	}
}

// Config configures a Panel.
type Config struct {
	// APIKey gates both channels. When empty the panel shows a
	// configuration notice and never builds a streamer or voice session.
	APIKey   string
	Language i18n.Language
}

// Panel is the headless chat widget.
type Panel struct {
	cfg Config

	newStreamer StreamerFactory
	newVoice    VoiceFactory

	list *conversation.List
	chat *textchat.Orchestrator
	bus  pipeline.Bus

	log     zerolog.Logger
	metrics *metrics.Metrics

	mu            sync.Mutex
	open          bool
	lang          i18n.Language
	mode          Mode
	apiReady      bool
	voice         VoiceController
	// toggles counts ToggleMode calls so a late start failure does not
	// undo a newer toggle.
	toggles       uint64
	listening     bool
	liveUser      string
	liveAssistant string
}

// Option configures a Panel.
type Option func(*Panel)

func WithLogger(l zerolog.Logger) Option {
	return func(p *Panel) { p.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Panel) { p.metrics = m }
}

// WithBus publishes panel events on bus instead of a private bus.
func WithBus(bus pipeline.Bus) Option {
	return func(p *Panel) { p.bus = bus }
}

func WithStreamerFactory(f StreamerFactory) Option {
	return func(p *Panel) { p.newStreamer = f }
}

func WithVoiceFactory(f VoiceFactory) Option {
	return func(p *Panel) { p.newVoice = f }
}

// NewPanel creates a closed panel showing the greeting.
func NewPanel(cfg Config, opts ...Option) *Panel {
	if !cfg.Language.Valid() {
		cfg.Language = i18n.DefaultLanguage
	}
	p := &Panel{
		cfg:  cfg,
		lang: cfg.Language,
		mode: ModeText,
		log:  log.Logger.With().Str("component", "widget").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bus == nil {
		p.bus = pipeline.NewEventBus()
	}

	p.list = conversation.NewList(greeting(p.lang))
	p.chat = textchat.NewOrchestrator(p.list,
		textchat.WithLogger(p.log),
		textchat.WithMetrics(p.metrics),
		textchat.WithLanguage(p.lang),
	)
	p.list.OnChange(func([]conversation.Turn) { p.publishState() })
	return p
}

func greeting(l i18n.Language) conversation.Turn {
	return conversation.Turn{
		ID:      conversation.GreetingID,
		Role:    conversation.RoleModel,
		Content: i18n.For(l).InitialMessage,
	}
}

// Bus returns the bus the panel publishes on.
func (p *Panel) Bus() pipeline.Bus {
	return p.bus
}

// Turns returns a snapshot of the conversation.
func (p *Panel) Turns() []conversation.Turn {
	return p.list.Snapshot()
}

// Open shows the panel. Without a credential it adds the configuration
// notice once; otherwise it builds a fresh chat channel for the current
// language.
func (p *Panel) Open(ctx context.Context) error {
	p.mu.Lock()
	p.open = true
	lang := p.lang
	p.apiReady = p.cfg.APIKey != ""
	ready := p.apiReady
	p.mu.Unlock()

	if !ready {
		p.chat.SetStreamer(nil)
		if !p.list.Has(conversation.ConfigErrorID) {
			p.list.Append(conversation.Turn{
				ID:      conversation.ConfigErrorID,
				Role:    conversation.RoleModel,
				Content: i18n.For(lang).APIKeyError,
			})
		}
		p.log.Warn().Msg("no api key configured, assistant disabled")
		p.publishState()
		return nil
	}

	err := p.rebuildStreamer(ctx, lang)
	p.publishState()
	return err
}

// Close hides the panel, ending any voice session and returning to text
// mode.
func (p *Panel) Close() {
	p.mu.Lock()
	p.open = false
	p.mode = ModeText
	vc := p.voice
	p.mu.Unlock()

	if vc != nil && vc.Active() {
		vc.Stop()
	}
	p.publishState()
}

// SetLanguage switches the UI language. The greeting and configuration
// notice are re-localized in place; other turns are kept as they are. An
// open panel gets a new chat channel primed for the new language.
func (p *Panel) SetLanguage(ctx context.Context, lang i18n.Language) error {
	if !lang.Valid() {
		return fmt.Errorf("%w: %q", i18n.ErrUnknownLanguage, string(lang))
	}

	p.mu.Lock()
	if p.lang == lang {
		p.mu.Unlock()
		return nil
	}
	p.lang = lang
	rebuild := p.open && p.apiReady
	vc := p.voice
	p.mu.Unlock()

	strs := i18n.For(lang)
	if !p.list.Update(conversation.GreetingID, func(t *conversation.Turn) { t.Content = strs.InitialMessage }) {
		p.list.Reset(append([]conversation.Turn{greeting(lang)}, p.list.Snapshot()...)...)
	}
	p.list.Update(conversation.ConfigErrorID, func(t *conversation.Turn) { t.Content = strs.APIKeyError })

	p.chat.SetLanguage(lang)
	if vc != nil {
		vc.SetLanguage(lang)
	}

	var err error
	if rebuild {
		err = p.rebuildStreamer(ctx, lang)
	}
	p.log.Info().Str("language", lang.String()).Msg("language changed")
	p.publishState()
	return err
}

func (p *Panel) rebuildStreamer(ctx context.Context, lang i18n.Language) error {
	if p.newStreamer == nil {
		p.chat.SetStreamer(nil)
		return nil
	}
	s, err := p.newStreamer(ctx, lang)
	if err != nil {
		p.chat.SetStreamer(nil)
		p.log.Error().Err(err).Str("language", lang.String()).Msg("failed to create chat channel")
		return fmt.Errorf("create chat channel: %w", err)
	}
	p.chat.SetStreamer(s)
	return nil
}

// Send relays typed text. It reports whether the message was accepted; it
// is refused in voice mode, without a credential, while a reply is
// streaming and for blank input. The reply streams in the background.
func (p *Panel) Send(ctx context.Context, text string) bool {
	p.mu.Lock()
	allowed := p.apiReady && p.mode == ModeText
	p.mu.Unlock()
	if !allowed {
		return false
	}

	accepted := p.chat.SendAsync(ctx, text, p.publishState)
	if accepted {
		p.publishState()
	}
	return accepted
}

// QuickAction sends the localized prompt of the quick action id.
func (p *Panel) QuickAction(ctx context.Context, id string) bool {
	p.mu.Lock()
	lang := p.lang
	p.mu.Unlock()

	prompt, ok := i18n.QuickActionPrompt(lang, id)
	if !ok {
		return false
	}
	return p.Send(ctx, prompt)
}

// ToggleMode switches between text and voice. Entering voice starts the
// session; if that fails the panel falls back to text mode and the error
// is returned. Leaving voice stops the session. A start cancelled by a
// later toggle returns nil and leaves the mode to that toggle.
func (p *Panel) ToggleMode(ctx context.Context) error {
	p.mu.Lock()
	if !p.apiReady {
		p.mu.Unlock()
		return ErrNotReady
	}
	p.toggles++

	if p.mode == ModeVoice {
		p.mode = ModeText
		vc := p.voice
		p.mu.Unlock()
		if vc != nil {
			vc.Stop()
		}
		p.publishState()
		return nil
	}

	if p.voice == nil {
		if p.newVoice == nil {
			p.mu.Unlock()
			return ErrVoiceUnavailable
		}
		p.voice = p.newVoice(VoiceHooks{
			TurnComplete: p.onVoiceTurn,
			Transcript:   p.onTranscript,
			StateChange:  p.onVoiceState,
		})
		p.voice.SetLanguage(p.lang)
	}
	p.mode = ModeVoice
	gen := p.toggles
	vc := p.voice
	p.mu.Unlock()
	p.publishState()

	err := vc.Start(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, voice.ErrStopped) {
		p.log.Debug().Msg("voice start cancelled")
		return nil
	}

	p.mu.Lock()
	current := p.toggles == gen
	if current {
		p.mode = ModeText
	}
	p.mu.Unlock()
	p.log.Error().Err(err).Bool("current", current).Msg("voice mode failed to start")
	p.bus.Publish(pipeline.Event{Type: pipeline.EventError, Timestamp: time.Now(), Payload: err.Error()})
	p.publishState()
	return err
}

// Stop releases the voice session, if any.
func (p *Panel) Stop() {
	p.mu.Lock()
	vc := p.voice
	p.mu.Unlock()
	if vc != nil {
		vc.Stop()
	}
}

func (p *Panel) onVoiceTurn(user, assistant string) {
	p.list.Append(conversation.UserTurn(user), conversation.ModelTurn(assistant))
}

func (p *Panel) onTranscript(user, assistant string) {
	p.mu.Lock()
	p.liveUser, p.liveAssistant = user, assistant
	p.mu.Unlock()
	p.publishState()
}

func (p *Panel) onVoiceState(s voice.State) {
	p.mu.Lock()
	p.listening = s != voice.StateIdle
	if !p.listening {
		p.liveUser, p.liveAssistant = "", ""
	}
	p.mu.Unlock()
	p.publishState()
}

// View returns the current render snapshot.
func (p *Panel) View() View {
	turns := p.list.Snapshot()
	loading := p.chat.Loading()

	p.mu.Lock()
	defer p.mu.Unlock()

	strs := i18n.For(p.lang)
	v := View{
		Open:          p.open,
		Language:      p.lang,
		Direction:     i18n.Direction(p.lang),
		Title:         strs.Title,
		Status:        strs.Status,
		Mode:          p.mode,
		APIReady:      p.apiReady,
		Loading:       loading,
		Listening:     p.listening,
		Placeholder:   strs.InputPlaceholder,
		Turns:         turns,
		LiveUser:      p.liveUser,
		LiveAssistant: p.liveAssistant,
	}
	if p.mode == ModeVoice {
		v.Placeholder = strs.InputPlaceholderListening
	}
	v.ComposerDisabled = !p.apiReady || loading || p.mode != ModeText
	v.ModeToggleDisabled = !p.apiReady

	quickDisabled := loading || !p.apiReady || p.mode == ModeVoice
	for _, qa := range i18n.QuickActions(p.lang) {
		v.QuickActions = append(v.QuickActions, QuickActionView{ID: qa.ID, Label: qa.Label, Disabled: quickDisabled})
	}
	return v
}

func (p *Panel) publishState() {
	p.bus.Publish(pipeline.Event{
		Type:      pipeline.EventStateChanged,
		Timestamp: time.Now(),
		Payload:   p.View(),
	})
}
