package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/realtime-ai/assistant-widget/pkg/audio"
	"github.com/realtime-ai/assistant-widget/pkg/pipeline"
)

type eventKind int

const (
	evMessage eventKind = iota
	evEnded
	evClosed
)

type event struct {
	kind     eventKind
	msg      *ServerMessage
	sourceID uint64
	err      error
}

// session owns the resources of one voice conversation.
type session struct {
	m   *Manager
	id  string
	cfg Config
	log zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	endSpan   func(error)
	startedAt time.Time

	// Set by acquire before the session becomes visible to other goroutines.
	input  InputStream
	output OutputContext
	live   LiveSession

	outbound *pipeline.ClearableChan[Blob]
	inbox    chan event
	wg       sync.WaitGroup
	// drained is closed once a start cancelled by Stop has released
	// everything it acquired.
	drained chan struct{}

	dropped atomic.Int64

	// mu guards the playback and transcript state below. It is held while an
	// event is applied and never while callbacks run.
	mu        sync.Mutex
	closed    bool
	active    bool
	scheduler audio.Scheduler
	sources   map[uint64]Source
	nextID    uint64
	userText  strings.Builder
	modelText strings.Builder

	closeOnce sync.Once
}

func newSession(m *Manager, id string, cfg Config) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		m:        m,
		id:       id,
		cfg:      cfg,
		log:      m.log.With().Str("session", id).Logger(),
		ctx:      ctx,
		cancel:   cancel,
		outbound: pipeline.NewClearableChan[Blob](cfg.SendQueue),
		inbox:    make(chan event, 256),
		drained:  make(chan struct{}),
		sources:  make(map[uint64]Source),
	}
}

// acquire opens the output clock, the live channel and then the microphone.
// Capture starts only once the channel is open. The dial is bounded by ctx
// and by Stop; the input stream lives as long as the session.
func (s *session) acquire(ctx context.Context) (err error) {
	lc := s.m.liveConfig(s.cfg)
	spanCtx, endSpan := s.m.spanFor(ctx, lc)
	s.endSpan = endSpan
	defer func() {
		if err != nil {
			endSpan(err)
			s.endSpan = nil
		}
	}()

	ctx, stop := context.WithCancel(spanCtx)
	defer stop()
	go func() {
		select {
		case <-s.ctx.Done():
			stop()
		case <-ctx.Done():
		}
	}()

	if s.m.devices == nil || s.m.dialer == nil {
		return errors.New("voice: no devices or dialer configured")
	}

	s.output, err = s.m.devices.OpenOutput(s.cfg.OutputSampleRate)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.live, err = s.m.dialer.Dial(ctx, lc)
	if err != nil {
		return fmt.Errorf("dial live session: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.input, err = s.m.devices.OpenInput(s.ctx, s.cfg.InputSampleRate, s.cfg.FrameSize, s.onFrame)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	return ctx.Err()
}

// run starts the sender, receiver and event loop.
func (s *session) run() {
	s.mu.Lock()
	s.active = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.wg.Add(3)
	go s.sendLoop()
	go s.receiveLoop()
	go s.eventLoop()
}

// onFrame is called by the capture device for every full frame.
func (s *session) onFrame(samples []float32) {
	if s.ctx.Err() != nil {
		return
	}
	blob := Blob{
		Data:     audio.FloatToPCM16(samples),
		MIMEType: audio.MIMEType(s.cfg.InputSampleRate),
	}
	if !s.outbound.Send(blob) {
		s.m.metrics.RecordFrameDropped()
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.log.Warn().Int64("dropped", n).Msg("send queue full, dropping microphone frame")
			s.m.publish(pipeline.EventWarning, fmt.Sprintf("dropped %d microphone frames", n))
		}
	}
}

func (s *session) sendLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case blob := <-s.outbound.Chan():
			if err := s.live.SendAudio(blob); err != nil {
				if s.ctx.Err() != nil {
					return
				}
				s.log.Debug().Err(err).Msg("send audio failed")
				continue
			}
			s.m.metrics.RecordFrameSent()
		}
	}
}

func (s *session) receiveLoop() {
	defer s.wg.Done()
	for {
		msg, err := s.live.Receive()
		if err != nil {
			if s.ctx.Err() == nil {
				s.post(event{kind: evClosed, err: err}, true)
			}
			return
		}
		if msg == nil {
			continue
		}
		if !s.post(event{kind: evMessage, msg: msg}, true) {
			return
		}
	}
}

// post delivers ev to the event loop. A blocking post waits for room; a
// non-blocking one drops the event when the inbox is full.
func (s *session) post(ev event, block bool) bool {
	if !block {
		select {
		case s.inbox <- ev:
			return true
		default:
			return false
		}
	}
	select {
	case s.inbox <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *session) eventLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.inbox:
			switch ev.kind {
			case evMessage:
				s.handleMessage(ev.msg)
			case evEnded:
				s.mu.Lock()
				delete(s.sources, ev.sourceID)
				s.mu.Unlock()
			case evClosed:
				if ev.err == nil {
					ev.err = errors.New("live session closed")
				}
				s.m.end(s, ev.err)
				return
			}
		}
	}
}

type turnResult struct {
	user, assistant string
	delivered       bool
}

// handleMessage applies one server message: transcripts, then playback,
// then interruption, then turn completion.
func (s *session) handleMessage(msg *ServerMessage) {
	var (
		transcriptChanged bool
		liveUser          string
		liveAssistant     string
		turn              *turnResult
		scheduled         []pipeline.PlaybackPayload
		flushed           bool
	)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if msg.InputTranscription != "" {
		s.userText.WriteString(msg.InputTranscription)
		transcriptChanged = true
	}
	if msg.OutputTranscription != "" {
		s.modelText.WriteString(msg.OutputTranscription)
		transcriptChanged = true
	}

	for _, payload := range msg.Audio {
		if p, ok := s.scheduleLocked(payload); ok {
			scheduled = append(scheduled, p)
		}
	}

	if msg.Interrupted {
		s.flushLocked()
		flushed = true
	}

	if msg.TurnComplete {
		user := strings.TrimSpace(s.userText.String())
		assistant := strings.TrimSpace(s.modelText.String())
		turn = &turnResult{user: user, assistant: assistant, delivered: user != "" && assistant != ""}
		s.userText.Reset()
		s.modelText.Reset()
		transcriptChanged = true
	}

	liveUser, liveAssistant = s.userText.String(), s.modelText.String()
	s.mu.Unlock()

	m := s.m
	for _, p := range scheduled {
		m.metrics.RecordBufferScheduled()
		m.publish(pipeline.EventPlaybackScheduled, p)
	}
	if flushed {
		m.metrics.RecordInterruption()
		m.publish(pipeline.EventPlaybackFlushed, nil)
		s.log.Debug().Msg("playback interrupted")
	}
	if turn != nil {
		if turn.delivered || turn.user != "" || turn.assistant != "" {
			m.metrics.RecordTurn(turn.delivered)
		}
		if turn.delivered {
			m.publish(pipeline.EventTurnCompleted, pipeline.TurnPayload{User: turn.user, Assistant: turn.assistant})
			if m.onTurnComplete != nil {
				m.onTurnComplete(turn.user, turn.assistant)
			}
		} else if turn.user != "" || turn.assistant != "" {
			s.log.Debug().
				Bool("has_user", turn.user != "").
				Bool("has_assistant", turn.assistant != "").
				Msg("dropping one-sided voice turn")
		}
	}
	if transcriptChanged {
		m.publish(pipeline.EventTranscript, pipeline.TranscriptPayload{User: liveUser, Assistant: liveAssistant})
		if m.onTranscript != nil {
			m.onTranscript(liveUser, liveAssistant)
		}
	}
}

// scheduleLocked decodes one PCM payload and queues it right after the
// previously scheduled buffer, or now if playback has drained.
func (s *session) scheduleLocked(payload []byte) (pipeline.PlaybackPayload, bool) {
	if len(payload) < audio.BytesPerSample || s.output == nil || s.output.Closed() {
		return pipeline.PlaybackPayload{}, false
	}
	buf := audio.DecodeBuffer(payload, s.cfg.OutputSampleRate)
	dur := buf.Duration()
	start := s.scheduler.Schedule(s.output.Now(), dur)

	s.nextID++
	id := s.nextID
	src := s.output.Play(buf, start, func() {
		s.post(event{kind: evEnded, sourceID: id}, false)
	})
	if src != nil {
		s.sources[id] = src
	}
	return pipeline.PlaybackPayload{StartAt: start, Duration: dur}, true
}

// flushLocked stops every in-flight buffer and rewinds the cursor.
func (s *session) flushLocked() {
	for id, src := range s.sources {
		src.Stop()
		delete(s.sources, id)
	}
	s.scheduler.Reset()
}

func (s *session) transcripts() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userText.String(), s.modelText.String()
}

func (s *session) inFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// close releases everything the session acquired. Errors from the remote
// channel and devices are logged and otherwise ignored.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()

		if s.live != nil {
			if err := s.live.Close(); err != nil {
				s.log.Debug().Err(err).Msg("close live session")
			}
		}
		if s.input != nil {
			if err := s.input.Stop(); err != nil {
				s.log.Debug().Err(err).Msg("stop input")
			}
		}

		s.mu.Lock()
		s.closed = true
		wasActive := s.active
		s.active = false
		s.flushLocked()
		s.userText.Reset()
		s.modelText.Reset()
		out := s.output
		s.mu.Unlock()

		if out != nil && !out.Closed() {
			if err := out.Close(); err != nil {
				s.log.Debug().Err(err).Msg("close output")
			}
		}
		s.outbound.Clear()

		if wasActive {
			s.m.metrics.RecordVoiceEnded(time.Since(s.startedAt).Seconds())
		}
		if s.endSpan != nil {
			s.endSpan(nil)
		}
		if s.m.onTranscript != nil && wasActive {
			s.m.onTranscript("", "")
		}
	})
}
