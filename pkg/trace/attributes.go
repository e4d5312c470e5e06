package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by widget spans.
const (
	AttrSessionID   = "session.id"
	AttrWidgetMode  = "widget.mode"
	AttrLanguage    = "widget.language"
	AttrQuickAction = "widget.quick_action"

	AttrChatProvider = "chat.provider"
	AttrChatModel    = "chat.model"
	AttrChatChunks   = "chat.chunks"
	AttrChatChars    = "chat.chars"

	AttrVoiceModel     = "voice.model"
	AttrVoiceName      = "voice.name"
	AttrVoiceState     = "voice.state"
	AttrVoiceUserText  = "voice.user_chars"
	AttrVoiceModelText = "voice.model_chars"

	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioDataSize   = "audio.data_size"
	AttrAudioStartAt    = "audio.start_at"
	AttrAudioDuration   = "audio.duration"

	AttrConnectionID    = "connection.id"
	AttrConnectionType  = "connection.type"
	AttrConnectionState = "connection.state"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// SessionAttrs tags a span with the widget session it belongs to.
func SessionAttrs(sessionID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
	}
}

// ChatAttrs describes a text chat backend.
func ChatAttrs(provider, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrChatProvider, provider),
		attribute.String(AttrChatModel, model),
	}
}

// VoiceAttrs describes a live voice session.
func VoiceAttrs(model, voice, language string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrVoiceModel, model),
		attribute.String(AttrVoiceName, voice),
		attribute.String(AttrLanguage, language),
	}
}

// PlaybackAttrs describes one scheduled chunk of model speech.
func PlaybackAttrs(sampleRate, dataSize int, startAt, duration float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrAudioSampleRate, sampleRate),
		attribute.Int(AttrAudioDataSize, dataSize),
		attribute.Float64(AttrAudioStartAt, startAt),
		attribute.Float64(AttrAudioDuration, duration),
	}
}

func ConnectionAttrs(connID, connType, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrConnectionID, connID),
		attribute.String(AttrConnectionType, connType),
		attribute.String(AttrConnectionState, state),
	}
}

func ErrorAttrs(errType, errMsg string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, errMsg),
	}
}
