package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordChatRequest("gemini")
	m.RecordChatResult("gemini", 3, true, 1)
	m.RecordVoiceStarted()
	m.RecordTurn(true)
	m.RecordConnectionDenied("auth")
	m.RecordChunkUndelivered()
}

func TestRecordVoiceLifecycle(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordVoiceStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VoiceSessionsActive))
	m.RecordVoiceEnded(2.5)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.VoiceSessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VoiceSessionsStarted))

	m.RecordTurn(true)
	m.RecordTurn(false)
	m.RecordTurn(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VoiceTurnsCompleted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.VoiceTurnsDropped))
}

func TestRecordChat(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordChatRequest("openai")
	m.RecordChatResult("openai", 4, false, 0.5)
	m.RecordChatResult("openai", 0, true, 0.1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChatRequests.WithLabelValues("openai")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChatFailures.WithLabelValues("openai")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ChatFragments))
}
