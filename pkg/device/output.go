// Package device provides the audio endpoints a voice session runs on.
package device

import (
	"sync"

	"github.com/realtime-ai/assistant-widget/pkg/audio"
	"github.com/realtime-ai/assistant-widget/pkg/voice"
)

// TimelineOutput exposes an audio.Timeline as a voice output context. A
// sound card callback pulls rendered samples with ReadInto.
type TimelineOutput struct {
	*audio.Timeline

	closeOnce sync.Once
	onClose   func() error
	closeErr  error
}

var _ voice.OutputContext = (*TimelineOutput)(nil)

// NewTimelineOutput wraps tl. onClose, if set, runs once before the
// timeline is closed; it releases whatever drives the timeline.
func NewTimelineOutput(tl *audio.Timeline, onClose func() error) *TimelineOutput {
	return &TimelineOutput{Timeline: tl, onClose: onClose}
}

func (o *TimelineOutput) Play(buf audio.Buffer, at float64, onEnded func()) voice.Source {
	return o.Timeline.Play(buf, at, onEnded)
}

func (o *TimelineOutput) Close() error {
	o.closeOnce.Do(func() {
		if o.onClose != nil {
			o.closeErr = o.onClose()
		}
		if err := o.Timeline.Close(); err != nil && o.closeErr == nil {
			o.closeErr = err
		}
	})
	return o.closeErr
}
