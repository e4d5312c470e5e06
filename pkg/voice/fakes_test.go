package voice

import (
	"context"
	"errors"
	"sync"

	"github.com/realtime-ai/assistant-widget/pkg/audio"
)

var errClosed = errors.New("closed")

type fakeLive struct {
	msgs chan *ServerMessage
	done chan struct{}

	mu        sync.Mutex
	sent      []Blob
	closed    bool
	sendGate  chan struct{}
	remoteErr error
}

func newFakeLive() *fakeLive {
	return &fakeLive{
		msgs: make(chan *ServerMessage, 16),
		done: make(chan struct{}),
	}
}

func (f *fakeLive) SendAudio(b Blob) error {
	if f.sendGate != nil {
		select {
		case <-f.sendGate:
		case <-f.done:
			return errClosed
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed
	}
	f.sent = append(f.sent, b)
	return nil
}

func (f *fakeLive) Receive() (*ServerMessage, error) {
	select {
	case msg, ok := <-f.msgs:
		if !ok {
			return nil, f.remoteErr
		}
		return msg, nil
	case <-f.done:
		return nil, errClosed
	}
}

func (f *fakeLive) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeLive) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeLive) sentBlobs() []Blob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Blob(nil), f.sent...)
}

type fakeDialer struct {
	live  *fakeLive
	err   error
	block bool
	// gate holds the first dial until closed, ignoring cancellation, like
	// a handshake that is already on the wire.
	gate chan struct{}

	mu      sync.Mutex
	dials   int
	configs []LiveConfig
	entered chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, cfg LiveConfig) (LiveSession, error) {
	d.mu.Lock()
	d.dials++
	first := d.dials == 1
	d.configs = append(d.configs, cfg)
	entered := d.entered
	d.mu.Unlock()

	if first && entered != nil && (d.block || d.gate != nil) {
		close(entered)
	}
	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if first && d.gate != nil {
		<-d.gate
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.live, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeInput struct {
	mu      sync.Mutex
	stopped bool
}

func (i *fakeInput) Stop() error {
	i.mu.Lock()
	i.stopped = true
	i.mu.Unlock()
	return nil
}

func (i *fakeInput) isStopped() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stopped
}

type playback struct {
	at       float64
	duration float64
	onEnded  func()
	source   *fakeSource
}

type fakeSource struct {
	mu      sync.Mutex
	stopped bool
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *fakeSource) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeOutput struct {
	mu      sync.Mutex
	now     float64
	plays   []playback
	closed  bool
	onClose func()
}

func (o *fakeOutput) Now() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) setNow(t float64) {
	o.mu.Lock()
	o.now = t
	o.mu.Unlock()
}

func (o *fakeOutput) Play(buf audio.Buffer, at float64, onEnded func()) Source {
	src := &fakeSource{}
	o.mu.Lock()
	o.plays = append(o.plays, playback{at: at, duration: buf.Duration(), onEnded: onEnded, source: src})
	o.mu.Unlock()
	return src
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	was := o.closed
	o.closed = true
	onClose := o.onClose
	o.mu.Unlock()
	if !was && onClose != nil {
		onClose()
	}
	return nil
}

func (o *fakeOutput) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *fakeOutput) history() []playback {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]playback(nil), o.plays...)
}

type fakeDevices struct {
	inputErr  error
	outputErr error

	mu      sync.Mutex
	input   *fakeInput
	output  *fakeOutput
	onFrame func([]float32)
	opened  []string
	open    int
	maxOpen int
}

func (d *fakeDevices) OpenInput(ctx context.Context, sampleRate, frameSize int, onFrame func([]float32)) (InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, "input")
	if d.inputErr != nil {
		return nil, d.inputErr
	}
	d.input = &fakeInput{}
	d.onFrame = onFrame
	return d.input, nil
}

func (d *fakeDevices) OpenOutput(sampleRate int) (OutputContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, "output")
	if d.outputErr != nil {
		return nil, d.outputErr
	}
	d.output = &fakeOutput{onClose: d.outputClosed}
	d.open++
	d.maxOpen = max(d.maxOpen, d.open)
	return d.output, nil
}

func (d *fakeDevices) outputClosed() {
	d.mu.Lock()
	d.open--
	d.mu.Unlock()
}

// maxOpenOutputs is the most output contexts that were open at once.
func (d *fakeDevices) maxOpenOutputs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOpen
}

func (d *fakeDevices) frame(samples []float32) {
	d.mu.Lock()
	fn := d.onFrame
	d.mu.Unlock()
	fn(samples)
}

func (d *fakeDevices) openedList() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}

// pcm returns n samples of silence at the output rate.
func pcm(samples int) []byte {
	return make([]byte, samples*audio.BytesPerSample)
}
