// Package voice manages a live, full-duplex voice conversation with the
// remote model: microphone frames go out, model speech comes back and is
// scheduled for gapless playback, and both sides are transcribed.
package voice

import (
	"context"
	"errors"

	"github.com/realtime-ai/assistant-widget/pkg/audio"
)

var (
	// ErrNoCredential is returned by Start when no API key is configured.
	ErrNoCredential = errors.New("voice: no credential configured")
	// ErrStopped is returned by Start when Stop won the race against it.
	ErrStopped = errors.New("voice: stopped during start")
)

// State is the lifecycle state of a Manager.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// LiveConfig describes the live channel to open.
type LiveConfig struct {
	Model             string
	SystemInstruction string
	VoiceName         string
	Language          string
}

// Blob is one chunk of outbound media.
type Blob struct {
	Data     []byte
	MIMEType string
}

// ServerMessage is the subset of a live server message the session acts on.
// Audio holds raw 16-bit little-endian PCM payloads in arrival order.
type ServerMessage struct {
	InputTranscription  string
	OutputTranscription string
	Audio               [][]byte
	Interrupted         bool
	TurnComplete        bool
}

// Dialer opens live channels to the model.
type Dialer interface {
	Dial(ctx context.Context, cfg LiveConfig) (LiveSession, error)
}

// LiveSession is an open bidirectional channel. Receive blocks until the
// next message and returns an error once the channel is closed.
type LiveSession interface {
	SendAudio(b Blob) error
	Receive() (*ServerMessage, error)
	Close() error
}

// Devices acquires the audio endpoints for a session.
type Devices interface {
	// OpenInput starts capturing mono audio at sampleRate and calls onFrame
	// with frames of exactly frameSize samples. ctx ends with the session.
	OpenInput(ctx context.Context, sampleRate, frameSize int, onFrame func([]float32)) (InputStream, error)
	// OpenOutput opens a playback clock at sampleRate.
	OpenOutput(sampleRate int) (OutputContext, error)
}

type InputStream interface {
	Stop() error
}

// OutputContext schedules buffers on a clock measured in seconds.
type OutputContext interface {
	Now() float64
	// Play schedules buf to start at the given clock time. onEnded runs
	// once when the buffer finishes naturally; it does not run after Stop.
	Play(buf audio.Buffer, at float64, onEnded func()) Source
	Close() error
	Closed() bool
}

// Source is a scheduled buffer.
type Source interface {
	Stop()
}
