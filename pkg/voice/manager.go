package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/assistant-widget/pkg/audio"
	"github.com/realtime-ai/assistant-widget/pkg/i18n"
	"github.com/realtime-ai/assistant-widget/pkg/metrics"
	"github.com/realtime-ai/assistant-widget/pkg/pipeline"
	"github.com/realtime-ai/assistant-widget/pkg/trace"
)

// DefaultLiveModel is the native-audio model used for voice sessions.
const DefaultLiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// Config configures a Manager.
type Config struct {
	// APIKey gates Start. The Dialer carries the key it actually uses.
	APIKey   string
	Model    string
	Language i18n.Language

	InputSampleRate  int
	OutputSampleRate int
	FrameSize        int
	// SendQueue bounds the captured frames waiting to be sent.
	SendQueue int
}

func (c *Config) setDefaults() {
	if c.Model == "" {
		c.Model = DefaultLiveModel
	}
	if !c.Language.Valid() {
		c.Language = i18n.DefaultLanguage
	}
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = audio.InputSampleRate
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = audio.OutputSampleRate
	}
	if c.FrameSize <= 0 {
		c.FrameSize = audio.InputFrameSize
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
}

// Manager owns at most one voice session at a time.
//
// Start and Stop may be called from any goroutine. Inbound traffic of a
// session is handled by a single goroutine, and the OnTranscript and
// OnTurnComplete callbacks run on it in arrival order.
type Manager struct {
	cfg     Config
	dialer  Dialer
	devices Devices

	log     zerolog.Logger
	metrics *metrics.Metrics
	bus     pipeline.Bus

	onTurnComplete func(user, assistant string)
	onTranscript   func(user, assistant string)
	onStateChange  func(State)

	mu    sync.Mutex
	state State
	cur   *session
	seq   uint64
	// draining is a start cancelled by Stop that still holds resources.
	draining *session
	waiting  int
	stops    uint64
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithBus publishes voice events on bus.
func WithBus(bus pipeline.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// OnTurnComplete registers the callback receiving each completed exchange.
// It only fires when both sides have non-empty text.
func OnTurnComplete(fn func(user, assistant string)) Option {
	return func(m *Manager) { m.onTurnComplete = fn }
}

// OnTranscript registers the callback receiving the live transcripts
// whenever either changes or they are cleared.
func OnTranscript(fn func(user, assistant string)) Option {
	return func(m *Manager) { m.onTranscript = fn }
}

func OnStateChange(fn func(State)) Option {
	return func(m *Manager) { m.onStateChange = fn }
}

// NewManager creates an idle manager.
func NewManager(cfg Config, dialer Dialer, devices Devices, opts ...Option) *Manager {
	cfg.setDefaults()
	m := &Manager{
		cfg:     cfg,
		dialer:  dialer,
		devices: devices,
		log:     log.Logger.With().Str("component", "voice").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active reports whether a session is starting or running. It turns true
// as soon as Start is accepted.
func (m *Manager) Active() bool {
	return m.State() != StateIdle
}

// SetLanguage selects the instruction and voice of the next session.
func (m *Manager) SetLanguage(l i18n.Language) {
	m.mu.Lock()
	m.cfg.Language = l
	m.mu.Unlock()
}

// Transcripts returns the live, not yet completed, transcripts.
func (m *Manager) Transcripts() (user, assistant string) {
	m.mu.Lock()
	s := m.cur
	m.mu.Unlock()
	if s == nil {
		return "", ""
	}
	return s.transcripts()
}

// Start opens a session. It returns nil without doing anything when a
// session is already starting or active, and ErrNoCredential without
// acquiring anything when no API key is configured. On failure every
// acquired resource is released and the manager is idle again. If Stop is
// called while Start is still acquiring, Start releases what it got and
// returns ErrStopped. A Start issued while a cancelled start is still
// releasing waits for it, and returns ErrStopped if Stop is called during
// that wait.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	stops := m.stops
	for m.draining != nil {
		drained := m.draining.drained
		m.waiting++
		m.mu.Unlock()
		var err error
		select {
		case <-drained:
		case <-ctx.Done():
			err = ctx.Err()
		}
		m.mu.Lock()
		m.waiting--
		if err != nil {
			m.mu.Unlock()
			return err
		}
		if m.stops != stops {
			m.mu.Unlock()
			return ErrStopped
		}
	}
	if m.state != StateIdle {
		m.mu.Unlock()
		return nil
	}
	if m.cfg.APIKey == "" {
		m.mu.Unlock()
		return ErrNoCredential
	}
	m.seq++
	cfg := m.cfg
	s := newSession(m, fmt.Sprintf("voice-%d", m.seq), cfg)
	m.cur = s
	m.state = StateStarting
	m.mu.Unlock()
	m.notifyState(StateStarting)

	err := s.acquire(ctx)

	m.mu.Lock()
	if m.cur != s {
		m.mu.Unlock()
		s.close()
		m.mu.Lock()
		if m.draining == s {
			m.draining = nil
		}
		m.mu.Unlock()
		close(s.drained)
		m.metrics.RecordVoiceFailed()
		m.log.Info().Str("session", s.id).Msg("voice start cancelled by stop")
		return ErrStopped
	}
	if err != nil {
		m.cur = nil
		m.state = StateIdle
		m.mu.Unlock()
		s.close()
		m.metrics.RecordVoiceFailed()
		m.log.Error().Err(err).Str("session", s.id).Msg("voice start failed")
		m.notifyState(StateIdle)
		m.publish(pipeline.EventError, err.Error())
		return err
	}
	m.state = StateActive
	s.run()
	m.mu.Unlock()

	m.metrics.RecordVoiceStarted()
	m.log.Info().
		Str("session", s.id).
		Str("model", cfg.Model).
		Str("voice", i18n.VoiceName(cfg.Language)).
		Msg("voice session active")
	m.notifyState(StateActive)
	return nil
}

// Stop ends the current session. It is a no-op when idle and safe to call
// from any goroutine, including the session callbacks.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
	m.end(nil, nil)
}

// end tears down s, or the current session when s is nil. cause is the
// remote error that ended it, if any.
func (m *Manager) end(s *session, cause error) {
	m.mu.Lock()
	cur := m.cur
	if cur == nil || (s != nil && s != cur) {
		m.mu.Unlock()
		return
	}
	wasStarting := m.state == StateStarting
	if wasStarting {
		m.draining = cur
	}
	m.cur = nil
	m.state = StateIdle
	m.mu.Unlock()

	if wasStarting {
		// Start still owns the acquisition; it closes the session once the
		// pending step returns.
		cur.cancel()
	} else {
		cur.close()
	}

	if cause != nil {
		m.log.Warn().Err(cause).Str("session", cur.id).Msg("voice session closed by remote")
		m.publish(pipeline.EventError, cause.Error())
	} else {
		m.log.Info().Str("session", cur.id).Msg("voice session stopped")
	}
	m.notifyState(StateIdle)
}

func (m *Manager) notifyState(st State) {
	m.publish(pipeline.EventVoiceState, st.String())
	if m.onStateChange != nil {
		m.onStateChange(st)
	}
}

func (m *Manager) publish(t pipeline.EventType, payload interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(pipeline.Event{Type: t, Timestamp: time.Now(), Payload: payload})
}

func (m *Manager) liveConfig(cfg Config) LiveConfig {
	return LiveConfig{
		Model:             cfg.Model,
		SystemInstruction: i18n.SystemPrompt(cfg.Language),
		VoiceName:         i18n.VoiceName(cfg.Language),
		Language:          cfg.Language.String(),
	}
}

// spanFor starts the tracing span that lives as long as the session.
func (m *Manager) spanFor(ctx context.Context, lc LiveConfig) (context.Context, func(error)) {
	ctx, span := trace.InstrumentVoiceSession(ctx, lc.Model, lc.VoiceName, lc.Language)
	return ctx, func(err error) {
		trace.RecordError(span, err)
		span.End()
	}
}
