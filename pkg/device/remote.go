package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/realtime-ai/assistant-widget/pkg/audio"
	"github.com/realtime-ai/assistant-widget/pkg/connection"
	"github.com/realtime-ai/assistant-widget/pkg/metrics"
	"github.com/realtime-ai/assistant-widget/pkg/voice"
)

// ErrInputBusy is returned when a second capture is opened on one peer.
var ErrInputBusy = errors.New("device: input already open")

// Remote is the audio endpoint pair of a browser client. Microphone frames
// arrive through PushAudio; model speech leaves as audio messages stamped
// with the time the client must start them.
type Remote struct {
	send    func(connection.Message) bool
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	input *remoteInput
}

var _ voice.Devices = (*Remote)(nil)

// NewRemote creates devices that deliver outbound messages through send.
// m may be nil.
func NewRemote(send func(connection.Message) bool, logger zerolog.Logger, m *metrics.Metrics) *Remote {
	return &Remote{send: send, log: logger, metrics: m, now: time.Now}
}

func (r *Remote) OpenInput(ctx context.Context, sampleRate, frameSize int, onFrame func([]float32)) (voice.InputStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.input != nil {
		return nil, ErrInputBusy
	}
	in := &remoteInput{r: r, rate: sampleRate, framer: audio.NewFramer(frameSize, onFrame)}
	r.input = in

	go func() {
		<-ctx.Done()
		_ = in.Stop()
	}()
	return in, nil
}

// PushAudio feeds one base64 PCM16 microphone chunk from the client. It is
// dropped when no capture is open.
func (r *Remote) PushAudio(data string) error {
	pcm, err := audio.DecodeBase64(data)
	if err != nil {
		return fmt.Errorf("decode audio: %w", err)
	}
	samples := audio.PCM16ToFloat(pcm)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.input == nil {
		return nil
	}
	r.input.framer.Write(samples)
	return nil
}

// Capturing reports whether a capture is open.
func (r *Remote) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.input != nil
}

type remoteInput struct {
	r      *Remote
	rate   int
	framer *audio.Framer
}

func (in *remoteInput) Stop() error {
	in.r.mu.Lock()
	defer in.r.mu.Unlock()
	if in.r.input == in {
		in.r.input = nil
		in.framer.Reset()
	}
	return nil
}

func (r *Remote) OpenOutput(sampleRate int) (voice.OutputContext, error) {
	return &remoteOutput{
		r:       r,
		rate:    sampleRate,
		start:   r.now(),
		sources: make(map[*remoteSource]struct{}),
	}, nil
}

// remoteOutput keeps a wall clock starting at zero when opened. The client
// plays each chunk at its start_at on a clock it starts with the first
// chunk of the session.
type remoteOutput struct {
	r     *Remote
	rate  int
	start time.Time

	mu      sync.Mutex
	closed  bool
	flushed bool
	sources map[*remoteSource]struct{}
}

func (o *remoteOutput) Now() float64 {
	return o.r.now().Sub(o.start).Seconds()
}

func (o *remoteOutput) Play(buf audio.Buffer, at float64, onEnded func()) voice.Source {
	dur := buf.Duration()
	rate := buf.SampleRate
	if rate == 0 {
		rate = o.rate
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return &remoteSource{o: o, done: true}
	}

	msg, err := connection.NewMessage(connection.MsgAudioOut, connection.AudioOutPayload{
		Data:       audio.EncodeBase64(audio.FloatToPCM16(buf.Samples)),
		SampleRate: rate,
		StartAt:    at,
		Duration:   dur,
	})
	if err != nil {
		o.r.log.Error().Err(err).Msg("encode audio chunk")
		return &remoteSource{o: o, done: true}
	}
	if !o.r.send(msg) {
		// The client never got the chunk, so it ends now rather than
		// occupying the in-flight set until its slot would have passed.
		o.r.metrics.RecordChunkUndelivered()
		o.r.log.Warn().Float64("start_at", at).Msg("audio chunk not delivered")
		if onEnded != nil {
			go onEnded()
		}
		return &remoteSource{o: o, done: true}
	}
	o.flushed = false

	src := &remoteSource{o: o}
	o.sources[src] = struct{}{}
	delay := time.Duration((at + dur - o.Now()) * float64(time.Second))
	src.timer = time.AfterFunc(delay, func() {
		if src.finish() && onEnded != nil {
			onEnded()
		}
	})
	return src
}

// flushLocked tells the client to drop queued speech, once per burst of stops.
func (o *remoteOutput) flushLocked() {
	if o.flushed || o.closed {
		return
	}
	o.flushed = true
	o.r.send(connection.Message{Type: connection.MsgAudioFlush})
}

func (o *remoteOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	for src := range o.sources {
		src.timer.Stop()
		src.done = true
	}
	o.sources = nil
	return nil
}

func (o *remoteOutput) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

type remoteSource struct {
	o     *remoteOutput
	timer *time.Timer
	done  bool
}

// finish marks a naturally ended source. It reports false if the source
// was already stopped.
func (s *remoteSource) finish() bool {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	delete(s.o.sources, s)
	return true
}

func (s *remoteSource) Stop() {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.timer.Stop()
	delete(s.o.sources, s)
	s.o.flushLocked()
}
