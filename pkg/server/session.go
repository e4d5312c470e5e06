package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/realtime-ai/assistant-widget/pkg/connection"
	"github.com/realtime-ai/assistant-widget/pkg/device"
	"github.com/realtime-ai/assistant-widget/pkg/i18n"
	"github.com/realtime-ai/assistant-widget/pkg/metrics"
	"github.com/realtime-ai/assistant-widget/pkg/pipeline"
	wtrace "github.com/realtime-ai/assistant-widget/pkg/trace"
	"github.com/realtime-ai/assistant-widget/pkg/widget"
)

// Error codes sent to the client.
const (
	CodePanelFailed    = "panel_creation_failed"
	CodeBadMessage     = "bad_message"
	CodeUnknownMessage = "unknown_message"
	CodeOpenFailed     = "open_failed"
	CodeLanguage       = "language_failed"
	CodeVoice          = "voice_failed"
	CodeAudio          = "audio_failed"
	CodeError          = "error"
)

// Session binds one client connection to its widget panel.
type Session struct {
	ID string

	conn    connection.Connection
	panel   *widget.Panel
	devices *device.Remote

	log     zerolog.Logger
	metrics *metrics.Metrics
	span    trace.Span

	ctx    context.Context
	cancel context.CancelFunc
	events chan pipeline.Event
	once   sync.Once
}

var _ connection.Handler = (*Session)(nil)

func newSession(parent context.Context, conn connection.Connection, factory PanelFactory, logger zerolog.Logger, m *metrics.Metrics) (*Session, error) {
	if factory == nil {
		return nil, errors.New("no panel factory")
	}

	ctx, cancel := context.WithCancel(parent)
	ctx, span := wtrace.InstrumentConnection(ctx, conn.PeerID(), "websocket")

	s := &Session{
		ID:      conn.PeerID(),
		conn:    conn,
		log:     logger.With().Str("session", conn.PeerID()).Logger(),
		metrics: m,
		span:    span,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan pipeline.Event, 64),
	}
	s.devices = device.NewRemote(conn.Send, s.log, m)

	panel, err := factory(ctx, s.ID, s.devices)
	if err != nil {
		wtrace.RecordError(span, err)
		span.End()
		cancel()
		return nil, fmt.Errorf("create panel: %w", err)
	}
	s.panel = panel
	return s, nil
}

// Panel returns the panel driven by this session.
func (s *Session) Panel() *widget.Panel {
	return s.panel
}

// Start subscribes to the panel and begins serving the connection. The
// current view is sent first.
func (s *Session) Start() {
	bus := s.panel.Bus()
	bus.Subscribe(pipeline.EventStateChanged, s.events)
	bus.Subscribe(pipeline.EventError, s.events)
	_ = bus.Start(s.ctx)

	go s.forward()

	s.conn.RegisterHandler(s)
	s.conn.Start()
	s.sendState()
}

// Close releases the panel and the connection.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		bus := s.panel.Bus()
		bus.Unsubscribe(pipeline.EventStateChanged, s.events)
		bus.Unsubscribe(pipeline.EventError, s.events)
		s.panel.Close()
		s.panel.Stop()
		_ = s.conn.Close()
		s.span.End()
		s.log.Debug().Msg("session closed")
	})
}

// forward relays panel events to the client. Bursts of state changes are
// coalesced into one message carrying the latest view.
func (s *Session) forward() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case evt := <-s.events:
			switch evt.Type {
			case pipeline.EventStateChanged:
				s.drainState()
				s.sendState()
			case pipeline.EventError:
				msg, _ := evt.Payload.(string)
				s.sendError(CodeError, msg)
			}
		}
	}
}

func (s *Session) drainState() {
	for {
		select {
		case evt := <-s.events:
			if evt.Type != pipeline.EventStateChanged {
				msg, _ := evt.Payload.(string)
				s.sendError(CodeError, msg)
			}
		default:
			return
		}
	}
}

func (s *Session) sendState() {
	msg, err := connection.NewMessage(connection.MsgState, s.panel.View())
	if err != nil {
		s.log.Error().Err(err).Msg("encode state")
		return
	}
	s.conn.Send(msg)
}

func (s *Session) sendError(code, message string) {
	s.conn.Send(connection.MustMessage(connection.MsgError, connection.ErrorPayload{Code: code, Message: message}))
}

func (s *Session) OnStateChange(_ connection.Connection, state connection.ConnectionState) {
	if state == connection.ConnectionStateClosed || state == connection.ConnectionStateFailed {
		s.cancel()
	}
}

func (s *Session) OnError(_ connection.Connection, err error) {
	s.log.Debug().Err(err).Msg("connection error")
}

func (s *Session) OnMessage(_ connection.Connection, msg connection.Message) {
	if err := connection.ValidateClient(msg); err != nil {
		s.sendError(CodeUnknownMessage, err.Error())
		return
	}

	switch msg.Type {
	case connection.MsgOpen:
		if err := s.panel.Open(s.ctx); err != nil {
			s.sendError(CodeOpenFailed, err.Error())
		}

	case connection.MsgClose:
		s.panel.Close()

	case connection.MsgLanguage:
		var p connection.LanguagePayload
		if err := msg.Decode(&p); err != nil {
			s.sendError(CodeBadMessage, err.Error())
			return
		}
		lang, err := i18n.ParseLanguage(p.Language)
		if err == nil {
			err = s.panel.SetLanguage(s.ctx, lang)
		}
		if err != nil {
			s.sendError(CodeLanguage, err.Error())
		}

	case connection.MsgSend:
		var p connection.SendPayload
		if err := msg.Decode(&p); err != nil {
			s.sendError(CodeBadMessage, err.Error())
			return
		}
		if !s.panel.Send(s.ctx, p.Text) {
			s.log.Debug().Msg("message not accepted")
		}

	case connection.MsgQuickAction:
		var p connection.QuickActionPayload
		if err := msg.Decode(&p); err != nil {
			s.sendError(CodeBadMessage, err.Error())
			return
		}
		if !s.panel.QuickAction(s.ctx, p.ID) {
			s.log.Debug().Str("action", p.ID).Msg("quick action not accepted")
		}

	case connection.MsgToggleVoice:
		// Starting voice dials the model; the read loop keeps serving so a
		// second toggle can cancel it.
		go s.toggleVoice()

	case connection.MsgAudioIn:
		var p connection.AudioInPayload
		if err := msg.Decode(&p); err != nil {
			s.sendError(CodeBadMessage, err.Error())
			return
		}
		if err := s.devices.PushAudio(p.Data); err != nil {
			s.sendError(CodeAudio, err.Error())
		}
	}
}

func (s *Session) toggleVoice() {
	err := s.panel.ToggleMode(s.ctx)
	if err == nil {
		return
	}
	// Start failures are already published on the panel bus.
	if errors.Is(err, widget.ErrNotReady) || errors.Is(err, widget.ErrVoiceUnavailable) {
		s.sendError(CodeVoice, err.Error())
	}
}
