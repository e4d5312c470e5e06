package connection

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownMessage is returned when decoding a message type this
// protocol does not define.
var ErrUnknownMessage = errors.New("unknown message type")

// MessageType names a protocol message.
type MessageType string

// Client to server.
const (
	MsgOpen        MessageType = "open"
	MsgClose       MessageType = "close"
	MsgLanguage    MessageType = "language"
	MsgSend        MessageType = "send"
	MsgQuickAction MessageType = "quick_action"
	MsgToggleVoice MessageType = "toggle_voice"
	MsgAudioIn     MessageType = "audio"
)

// Server to client.
const (
	MsgState      MessageType = "state"
	MsgAudioOut   MessageType = "audio"
	MsgAudioFlush MessageType = "audio_flush"
	MsgError      MessageType = "error"
)

// Message is the JSON envelope of every frame.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// LanguagePayload selects the UI language ("en" or "ar").
type LanguagePayload struct {
	Language string `json:"language"`
}

// SendPayload carries typed text.
type SendPayload struct {
	Text string `json:"text"`
}

// QuickActionPayload names a quick action.
type QuickActionPayload struct {
	ID string `json:"id"`
}

// AudioInPayload is one microphone frame: base64 little-endian 16-bit
// mono PCM at 16 kHz.
type AudioInPayload struct {
	Data string `json:"data"`
}

// AudioOutPayload is one chunk of model speech: base64 little-endian
// 16-bit mono PCM. StartAt is the session playback clock time in seconds
// at which the client must start the chunk.
type AudioOutPayload struct {
	Data       string  `json:"data"`
	SampleRate int     `json:"sample_rate"`
	StartAt    float64 `json:"start_at"`
	Duration   float64 `json:"duration"`
}

// ErrorPayload reports a failure to the client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage builds a message with payload marshalled as JSON. A nil
// payload produces a message without one.
func NewMessage(t MessageType, payload interface{}) (Message, error) {
	msg := Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	msg.Payload = raw
	return msg, nil
}

// MustMessage is NewMessage for payloads that always marshal.
func MustMessage(t MessageType, payload interface{}) Message {
	msg, err := NewMessage(t, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Decode unmarshals the payload of msg into v.
func (m Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.Type, err)
	}
	return nil
}

// ParseMessage decodes one frame.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("parse message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, errors.New("parse message: missing type")
	}
	return msg, nil
}

// ValidateClient checks that msg is a client message type.
func ValidateClient(msg Message) error {
	switch msg.Type {
	case MsgOpen, MsgClose, MsgLanguage, MsgSend, MsgQuickAction, MsgToggleVoice, MsgAudioIn:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownMessage, string(msg.Type))
}
