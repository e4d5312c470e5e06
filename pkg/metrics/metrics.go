// Package metrics exposes the widget's Prometheus instruments.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the widget instruments. A nil *Metrics records nothing.
type Metrics struct {
	// Text chat
	ChatRequests  *prometheus.CounterVec
	ChatFailures  *prometheus.CounterVec
	ChatDuration  *prometheus.HistogramVec
	ChatFragments prometheus.Counter
	ChatRejected  prometheus.Counter

	// Voice sessions
	VoiceSessionsStarted prometheus.Counter
	VoiceSessionsFailed  prometheus.Counter
	VoiceSessionsActive  prometheus.Gauge
	VoiceSessionDuration prometheus.Histogram
	VoiceFramesSent      prometheus.Counter
	VoiceFramesDropped   prometheus.Counter
	VoiceBuffersPlayed   prometheus.Counter
	VoiceChunksLost      prometheus.Counter
	VoiceInterruptions   prometheus.Counter
	VoiceTurnsCompleted  prometheus.Counter
	VoiceTurnsDropped    prometheus.Counter

	// Transport
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	ConnectionsDenied *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the instruments registered with the global registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_chat_requests_total",
			Help: "Text chat sends accepted, by provider",
		}, []string{"provider"}),
		ChatFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_chat_failures_total",
			Help: "Text chat sends that ended in an error turn, by provider",
		}, []string{"provider"}),
		ChatDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "widget_chat_duration_seconds",
			Help:    "Time from send to final fragment",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"provider"}),
		ChatFragments: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_chat_fragments_total",
			Help: "Streamed text fragments appended to model turns",
		}),
		ChatRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_chat_rejected_total",
			Help: "Sends ignored because the input was empty, a send was in flight, or the channel was not ready",
		}),

		VoiceSessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_voice_sessions_started_total",
			Help: "Voice sessions that reached the active state",
		}),
		VoiceSessionsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_voice_sessions_failed_total",
			Help: "Voice session starts that failed",
		}),
		VoiceSessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "widget_voice_sessions_active",
			Help: "Voice sessions currently active",
		}),
		VoiceSessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "widget_voice_session_duration_seconds",
			Help:    "Voice session lifetime",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		VoiceFramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_voice_frames_sent_total",
			Help: "Captured audio frames sent to the live channel",
		}),
		VoiceFramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_voice_frames_dropped_total",
			Help: "Captured audio frames dropped because the send queue was full",
		}),
		VoiceBuffersPlayed: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_voice_buffers_scheduled_total",
			Help: "Model audio buffers scheduled for playback",
		}),
		VoiceChunksLost: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_voice_chunks_undelivered_total",
			Help: "Model audio chunks dropped because the client send queue was full",
		}),
		VoiceInterruptions: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_voice_interruptions_total",
			Help: "Barge-in interruptions that flushed playback",
		}),
		VoiceTurnsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_voice_turns_completed_total",
			Help: "Voice exchanges delivered to the transcript",
		}),
		VoiceTurnsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_voice_turns_dropped_total",
			Help: "Voice turns discarded because one side was empty",
		}),

		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "widget_connections_active",
			Help: "Open widget websocket connections",
		}),
		ConnectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "widget_connections_total",
			Help: "Widget websocket connections accepted",
		}),
		ConnectionsDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "widget_connections_denied_total",
			Help: "Widget websocket connections refused, by reason",
		}, []string{"reason"}),
	}
}

// RecordChatRequest counts an accepted send.
func (m *Metrics) RecordChatRequest(provider string) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(provider).Inc()
}

// RecordChatResult records how a send finished.
func (m *Metrics) RecordChatResult(provider string, fragments int, failed bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ChatFragments.Add(float64(fragments))
	m.ChatDuration.WithLabelValues(provider).Observe(durationSeconds)
	if failed {
		m.ChatFailures.WithLabelValues(provider).Inc()
	}
}

func (m *Metrics) RecordChatRejected() {
	if m == nil {
		return
	}
	m.ChatRejected.Inc()
}

func (m *Metrics) RecordVoiceStarted() {
	if m == nil {
		return
	}
	m.VoiceSessionsStarted.Inc()
	m.VoiceSessionsActive.Inc()
}

func (m *Metrics) RecordVoiceFailed() {
	if m == nil {
		return
	}
	m.VoiceSessionsFailed.Inc()
}

// RecordVoiceEnded closes out a session that reached the active state.
func (m *Metrics) RecordVoiceEnded(durationSeconds float64) {
	if m == nil {
		return
	}
	m.VoiceSessionsActive.Dec()
	m.VoiceSessionDuration.Observe(durationSeconds)
}

func (m *Metrics) RecordFrameSent() {
	if m == nil {
		return
	}
	m.VoiceFramesSent.Inc()
}

func (m *Metrics) RecordFrameDropped() {
	if m == nil {
		return
	}
	m.VoiceFramesDropped.Inc()
}

func (m *Metrics) RecordChunkUndelivered() {
	if m == nil {
		return
	}
	m.VoiceChunksLost.Inc()
}

func (m *Metrics) RecordBufferScheduled() {
	if m == nil {
		return
	}
	m.VoiceBuffersPlayed.Inc()
}

func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.VoiceInterruptions.Inc()
}

// RecordTurn counts a turn boundary as delivered or dropped.
func (m *Metrics) RecordTurn(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.VoiceTurnsCompleted.Inc()
	} else {
		m.VoiceTurnsDropped.Inc()
	}
}

func (m *Metrics) RecordConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

func (m *Metrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

func (m *Metrics) RecordConnectionDenied(reason string) {
	if m == nil {
		return
	}
	m.ConnectionsDenied.WithLabelValues(reason).Inc()
}
