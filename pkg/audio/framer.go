package audio

// Framer cuts a continuous sample stream into fixed-size frames.
// It is not safe for concurrent use; feed it from a single capture callback.
type Framer struct {
	size int
	buf  []float32
	emit func([]float32)
}

// NewFramer creates a framer that calls emit with frames of exactly size
// samples. Each emitted slice is owned by the callee.
func NewFramer(size int, emit func([]float32)) *Framer {
	if size <= 0 {
		size = InputFrameSize
	}
	return &Framer{
		size: size,
		buf:  make([]float32, 0, size*2),
		emit: emit,
	}
}

// Size returns the frame length in samples.
func (f *Framer) Size() int {
	return f.size
}

// Write appends samples and emits every complete frame.
func (f *Framer) Write(samples []float32) {
	f.buf = append(f.buf, samples...)
	for len(f.buf) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.buf[:f.size])
		n := copy(f.buf, f.buf[f.size:])
		f.buf = f.buf[:n]
		f.emit(frame)
	}
}

// Buffered returns the number of samples waiting for a full frame.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards any partial frame.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
