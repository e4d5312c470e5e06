package audio

import (
	"math"
	"sync"
)

// TimelineConfig configures a Timeline.
type TimelineConfig struct {
	SampleRate int
}

// DefaultTimelineConfig returns the configuration for model speech output.
func DefaultTimelineConfig() TimelineConfig {
	return TimelineConfig{SampleRate: OutputSampleRate}
}

// Timeline is a sample-clocked output context. Buffers are placed at an
// absolute start time and a pull-based sink (a sound card callback) renders
// them with ReadFrame. The clock only advances as samples are rendered, so
// Now reflects what has actually been played.
//
// Regions without a scheduled buffer render as silence. Overlapping buffers
// are mixed.
type Timeline struct {
	mu         sync.Mutex
	sampleRate int
	playhead   int64
	sources    []*TimelineSource
	closed     bool
}

// TimelineSource is one scheduled buffer.
type TimelineSource struct {
	tl      *Timeline
	start   int64
	samples []float32
	onEnded func()
	done    bool
}

// NewTimeline creates a timeline with the default configuration.
func NewTimeline() *Timeline {
	return NewTimelineWithConfig(DefaultTimelineConfig())
}

// NewTimelineWithConfig creates a timeline with a custom configuration.
func NewTimelineWithConfig(cfg TimelineConfig) *Timeline {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = OutputSampleRate
	}
	return &Timeline{sampleRate: cfg.SampleRate}
}

// SampleRate returns the output rate.
func (t *Timeline) SampleRate() int {
	return t.sampleRate
}

// Now returns the playback clock in seconds.
func (t *Timeline) Now() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.playhead) / float64(t.sampleRate)
}

// Play schedules buf to start at the given time in seconds. Start times in
// the past are clamped to the playhead. onEnded, if set, runs once the last
// sample has been rendered. On a closed timeline the source is inert.
func (t *Timeline) Play(buf Buffer, at float64, onEnded func()) *TimelineSource {
	src := &TimelineSource{tl: t, samples: buf.Samples, onEnded: onEnded}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		src.done = true
		return src
	}

	start := int64(math.Round(at * float64(t.sampleRate)))
	if start < t.playhead {
		start = t.playhead
	}
	src.start = start
	t.sources = append(t.sources, src)
	return src
}

// ReadFrame renders len(out) samples starting at the playhead and advances
// the clock. Ended callbacks run after the lock is released.
func (t *Timeline) ReadFrame(out []float32) {
	for i := range out {
		out[i] = 0
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	from := t.playhead
	to := from + int64(len(out))
	var ended []func()

	remaining := t.sources[:0]
	for _, src := range t.sources {
		end := src.start + int64(len(src.samples))
		if src.start < to && end > from {
			lo := max(src.start, from)
			hi := min(end, to)
			for pos := lo; pos < hi; pos++ {
				out[pos-from] += src.samples[pos-src.start]
			}
		}
		if end <= to {
			src.done = true
			if src.onEnded != nil {
				ended = append(ended, src.onEnded)
			}
			continue
		}
		remaining = append(remaining, src)
	}
	t.sources = remaining
	t.playhead = to
	t.mu.Unlock()

	for _, fn := range ended {
		fn()
	}
}

// ReadInto renders float32 little-endian samples into a device buffer.
func (t *Timeline) ReadInto(dst []byte) {
	frame := make([]float32, len(dst)/4)
	t.ReadFrame(frame)
	Float32ToBytes(dst, frame)
}

// Pending returns the number of sources that have not finished.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sources)
}

// Clear drops every scheduled source without firing ended callbacks.
func (t *Timeline) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, src := range t.sources {
		src.done = true
	}
	t.sources = nil
}

// Close clears the timeline and makes it inert.
func (t *Timeline) Close() error {
	t.Clear()
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (t *Timeline) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Start returns the scheduled start in seconds.
func (s *TimelineSource) Start() float64 {
	return float64(s.start) / float64(s.tl.sampleRate)
}

// Stop removes the source from the timeline. Its ended callback does not run.
func (s *TimelineSource) Stop() {
	t := s.tl
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	for i, src := range t.sources {
		if src == s {
			t.sources = append(t.sources[:i], t.sources[i+1:]...)
			break
		}
	}
}
