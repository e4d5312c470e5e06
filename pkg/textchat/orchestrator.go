package textchat

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/assistant-widget/pkg/conversation"
	"github.com/realtime-ai/assistant-widget/pkg/i18n"
	"github.com/realtime-ai/assistant-widget/pkg/metrics"
	"github.com/realtime-ai/assistant-widget/pkg/trace"
)

// Orchestrator runs text sends against a Streamer, one at a time, and
// mirrors the reply into a conversation list.
//
// While a send is in flight the list holds exactly one pending model turn
// with ID conversation.PendingID. Fragments are appended to it as they
// arrive. On success it is finalized under a fresh ID; on failure its
// content is replaced by the localized error text.
type Orchestrator struct {
	list *conversation.List

	mu       sync.RWMutex
	streamer Streamer
	lang     i18n.Language

	loading atomic.Bool

	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLanguage(l i18n.Language) Option {
	return func(o *Orchestrator) { o.lang = l }
}

// NewOrchestrator creates an orchestrator writing into list. It has no
// streamer until SetStreamer is called, and ignores sends until then.
func NewOrchestrator(list *conversation.List, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		list: list,
		lang: i18n.DefaultLanguage,
		log:  log.Logger.With().Str("component", "textchat").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetStreamer installs the chat channel. Passing nil marks the channel not
// ready. A send already in flight keeps the streamer it started with.
func (o *Orchestrator) SetStreamer(s Streamer) {
	o.mu.Lock()
	o.streamer = s
	o.mu.Unlock()
}

// SetLanguage selects the language of the error text.
func (o *Orchestrator) SetLanguage(l i18n.Language) {
	o.mu.Lock()
	o.lang = l
	o.mu.Unlock()
}

// Ready reports whether a streamer is installed.
func (o *Orchestrator) Ready() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.streamer != nil
}

// Loading reports whether a send is in flight.
func (o *Orchestrator) Loading() bool {
	return o.loading.Load()
}

// Send submits text and blocks until the reply is finalized. It returns
// false, without touching the list, when text is blank, another send is in
// flight, or no streamer is installed.
func (o *Orchestrator) Send(ctx context.Context, text string) bool {
	run, ok := o.accept(text)
	if !ok {
		return false
	}
	run(ctx)
	return true
}

// SendAsync accepts text like Send and streams the reply in the background.
// done, if non-nil, runs after the reply is finalized.
func (o *Orchestrator) SendAsync(ctx context.Context, text string, done func()) bool {
	run, ok := o.accept(text)
	if !ok {
		return false
	}
	go func() {
		run(ctx)
		if done != nil {
			done()
		}
	}()
	return true
}

// accept performs the admission checks and the synchronous list updates.
func (o *Orchestrator) accept(text string) (func(context.Context), bool) {
	if strings.TrimSpace(text) == "" {
		o.metrics.RecordChatRejected()
		return nil, false
	}

	o.mu.RLock()
	streamer := o.streamer
	lang := o.lang
	o.mu.RUnlock()
	if streamer == nil {
		o.metrics.RecordChatRejected()
		return nil, false
	}

	if !o.loading.CompareAndSwap(false, true) {
		o.metrics.RecordChatRejected()
		return nil, false
	}

	o.list.Append(
		conversation.UserTurn(text),
		conversation.Turn{ID: conversation.PendingID, Role: conversation.RoleModel, Pending: true},
	)

	return func(ctx context.Context) {
		defer o.loading.Store(false)
		o.stream(ctx, streamer, lang, text)
	}, true
}

func (o *Orchestrator) stream(ctx context.Context, streamer Streamer, lang i18n.Language, text string) {
	provider, model := describe(streamer)
	o.metrics.RecordChatRequest(provider)

	ctx, span := trace.InstrumentChatRequest(ctx, provider, model)
	defer span.End()
	logger := trace.Logger(ctx, o.log)

	started := time.Now()
	fragments := 0
	var streamErr error

	for frag, err := range streamer.Stream(ctx, text) {
		if err != nil {
			streamErr = err
			break
		}
		if frag == "" {
			continue
		}
		fragments++
		o.list.Update(conversation.PendingID, func(t *conversation.Turn) {
			t.Content += frag
		})
	}
	if streamErr == nil && ctx.Err() != nil {
		streamErr = ctx.Err()
	}

	finalID := conversation.NewID("model")
	if streamErr != nil {
		trace.RecordError(span, streamErr)
		logger.Error().Err(streamErr).Str("provider", provider).Int("fragments", fragments).Msg("chat stream failed")
		errText := i18n.For(lang).Error
		o.list.Update(conversation.PendingID, func(t *conversation.Turn) {
			t.ID = finalID
			t.Content = errText
			t.Pending = false
		})
	} else {
		logger.Debug().Str("provider", provider).Int("fragments", fragments).Dur("took", time.Since(started)).Msg("chat reply complete")
		o.list.Update(conversation.PendingID, func(t *conversation.Turn) {
			t.ID = finalID
			t.Pending = false
		})
	}

	o.metrics.RecordChatResult(provider, fragments, streamErr != nil, time.Since(started).Seconds())
}
