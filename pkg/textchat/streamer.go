// Package textchat relays typed user messages to a streaming chat model and
// keeps the conversation list in step with the reply.
package textchat

import (
	"context"
	"iter"
)

// Streamer sends one user message on an ongoing conversation and yields the
// reply as incremental text fragments, in arrival order. A yielded error
// ends the reply. Implementations keep the conversation history themselves.
type Streamer interface {
	Stream(ctx context.Context, text string) iter.Seq2[string, error]
}

// Provider is implemented by streamers that can name their backend.
type Provider interface {
	Provider() string
	Model() string
}

func describe(s Streamer) (provider, model string) {
	if p, ok := s.(Provider); ok {
		return p.Provider(), p.Model()
	}
	return "unknown", ""
}

// StreamerFunc adapts a function to Streamer.
type StreamerFunc func(ctx context.Context, text string) iter.Seq2[string, error]

func (f StreamerFunc) Stream(ctx context.Context, text string) iter.Seq2[string, error] {
	return f(ctx, text)
}
