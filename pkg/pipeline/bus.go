// Package pipeline carries widget events between the orchestrators and the
// transports that render them.
package pipeline

import (
	"context"
	"sync"
	"time"
)

// EventType identifies a widget event.
type EventType string

const (
	// EventStateChanged carries a widget view snapshot.
	EventStateChanged EventType = "state_changed"
	// EventTurnCompleted carries a TurnPayload for a finished voice turn.
	EventTurnCompleted EventType = "turn_completed"
	// EventTranscript carries a TranscriptPayload with the live transcripts.
	EventTranscript EventType = "transcript"
	// EventVoiceState carries the voice session state string.
	EventVoiceState EventType = "voice_state"
	// EventPlaybackScheduled carries a PlaybackPayload.
	EventPlaybackScheduled EventType = "playback_scheduled"
	// EventPlaybackFlushed is published when queued speech is discarded.
	EventPlaybackFlushed EventType = "playback_flushed"
	// EventError carries an error message string.
	EventError EventType = "error"
	// EventWarning carries a warning message string.
	EventWarning EventType = "warning"
)

// Event is one published notification.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// TurnPayload is the payload of EventTurnCompleted.
type TurnPayload struct {
	User      string
	Assistant string
}

// TranscriptPayload is the payload of EventTranscript.
type TranscriptPayload struct {
	User      string
	Assistant string
}

// PlaybackPayload is the payload of EventPlaybackScheduled.
type PlaybackPayload struct {
	StartAt  float64
	Duration float64
}

// Bus is a publish/subscribe notifier.
type Bus interface {
	Subscribe(eventType EventType, ch chan<- Event)
	Unsubscribe(eventType EventType, ch chan<- Event)
	Publish(evt Event) bool
	Start(ctx context.Context) error
	Stop()
}

// EventBus fans events out to subscriber channels without blocking.
// A subscriber whose channel is full misses the event.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[EventType][]chan<- Event
	cancel context.CancelFunc
}

var _ Bus = (*EventBus)(nil)

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[EventType][]chan<- Event)}
}

// Subscribe registers ch for events of eventType.
func (b *EventBus) Subscribe(eventType EventType, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], ch)
}

// Unsubscribe removes ch from eventType.
func (b *EventBus) Unsubscribe(eventType EventType, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[eventType]
	for i, c := range list {
		if c == ch {
			b.subs[eventType] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[eventType]) == 0 {
		delete(b.subs, eventType)
	}
}

// Publish delivers evt to every subscriber that has room. It reports
// whether all subscribers received it; false with no subscribers.
func (b *EventBus) Publish(evt Event) bool {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	list := b.subs[evt.Type]
	if len(list) == 0 {
		return false
	}

	delivered := true
	for _, ch := range list {
		select {
		case ch <- evt:
		default:
			delivered = false
		}
	}
	return delivered
}

// Start ties the bus to ctx: when ctx ends every subscription is dropped.
// Calling Start on a started bus is a no-op.
func (b *EventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.subs = make(map[EventType][]chan<- Event)
		b.mu.Unlock()
	}()
	return nil
}

// Stop drops every subscription. Safe to call more than once.
func (b *EventBus) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.subs = make(map[EventType][]chan<- Event)
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
