package audio

import "sync"

// Buffer is a block of decoded mono audio ready for playback.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// DecodeBuffer turns 16-bit PCM into a playable buffer.
func DecodeBuffer(pcm []byte, sampleRate int) Buffer {
	return Buffer{Samples: PCM16ToFloat(pcm), SampleRate: sampleRate}
}

// Duration returns the playback length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Scheduler keeps the "next start time" cursor that lays chunked audio
// back-to-back on an output clock.
//
// A chunk starts at max(next, now) and moves the cursor to the end of the
// chunk, so consecutive chunks never overlap and never leave a gap while the
// cursor is ahead of the clock.
type Scheduler struct {
	mu   sync.Mutex
	next float64
}

// Schedule returns the start time for a chunk of the given duration.
func (s *Scheduler) Schedule(now, duration float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.next
	if now > start {
		start = now
	}
	s.next = start + duration
	return start
}

// Next returns the current cursor.
func (s *Scheduler) Next() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Reset moves the cursor back to zero so the next chunk starts at "now".
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.next = 0
	s.mu.Unlock()
}
