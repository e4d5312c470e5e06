package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ones(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestTimelineRendersAndEnds(t *testing.T) {
	tl := NewTimelineWithConfig(TimelineConfig{SampleRate: 10})
	ended := 0
	tl.Play(Buffer{Samples: ones(5, 0.5), SampleRate: 10}, 0, func() { ended++ })

	frame := make([]float32, 3)
	tl.ReadFrame(frame)
	assert.Equal(t, []float32{0.5, 0.5, 0.5}, frame)
	assert.InDelta(t, 0.3, tl.Now(), 1e-9)
	assert.Equal(t, 0, ended)

	tl.ReadFrame(frame)
	assert.Equal(t, []float32{0.5, 0.5, 0}, frame)
	assert.Equal(t, 1, ended)
	assert.Equal(t, 0, tl.Pending())
}

func TestTimelineSilenceUntilStart(t *testing.T) {
	tl := NewTimelineWithConfig(TimelineConfig{SampleRate: 10})
	src := tl.Play(Buffer{Samples: ones(2, 1), SampleRate: 10}, 0.4, nil)
	assert.InDelta(t, 0.4, src.Start(), 1e-9)

	frame := make([]float32, 6)
	tl.ReadFrame(frame)
	assert.Equal(t, []float32{0, 0, 0, 0, 1, 1}, frame)
}

func TestTimelineBackToBackIsGapless(t *testing.T) {
	tl := NewTimelineWithConfig(TimelineConfig{SampleRate: 10})
	var s Scheduler

	b1 := Buffer{Samples: ones(3, 0.25), SampleRate: 10}
	b2 := Buffer{Samples: ones(2, 0.75), SampleRate: 10}
	tl.Play(b1, s.Schedule(tl.Now(), b1.Duration()), nil)
	tl.Play(b2, s.Schedule(tl.Now(), b2.Duration()), nil)

	frame := make([]float32, 6)
	tl.ReadFrame(frame)
	assert.Equal(t, []float32{0.25, 0.25, 0.25, 0.75, 0.75, 0}, frame)
}

func TestTimelinePastStartIsClamped(t *testing.T) {
	tl := NewTimelineWithConfig(TimelineConfig{SampleRate: 10})
	tl.ReadFrame(make([]float32, 5))

	src := tl.Play(Buffer{Samples: ones(1, 1), SampleRate: 10}, 0, nil)
	assert.InDelta(t, 0.5, src.Start(), 1e-9)
}

func TestTimelineStopAndClear(t *testing.T) {
	tl := NewTimelineWithConfig(TimelineConfig{SampleRate: 10})
	ended := 0
	a := tl.Play(Buffer{Samples: ones(4, 1), SampleRate: 10}, 0, func() { ended++ })
	tl.Play(Buffer{Samples: ones(4, 1), SampleRate: 10}, 0, func() { ended++ })
	require.Equal(t, 2, tl.Pending())

	a.Stop()
	a.Stop()
	assert.Equal(t, 1, tl.Pending())

	tl.Clear()
	assert.Equal(t, 0, tl.Pending())

	frame := make([]float32, 4)
	tl.ReadFrame(frame)
	assert.Equal(t, []float32{0, 0, 0, 0}, frame)
	assert.Equal(t, 0, ended)
}

func TestTimelineClose(t *testing.T) {
	tl := NewTimeline()
	assert.Equal(t, OutputSampleRate, tl.SampleRate())
	require.NoError(t, tl.Close())
	assert.True(t, tl.Closed())

	tl.Play(Buffer{Samples: ones(10, 1), SampleRate: OutputSampleRate}, 0, nil)
	assert.Equal(t, 0, tl.Pending())

	dst := make([]byte, 8)
	tl.ReadInto(dst)
	assert.Equal(t, make([]byte, 8), dst)
}
