package textchat

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultOpenAIModel is used when OpenAIConfig.Model is empty.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures an OpenAIStreamer.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	// MaxHistory bounds the retained messages, counted in user/assistant
	// pairs. 0 keeps 10 pairs.
	MaxHistory int
	// Timeout bounds each request when positive.
	Timeout time.Duration
}

// OpenAIStreamer streams chat completions and keeps a bounded history of
// completed exchanges.
type OpenAIStreamer struct {
	config OpenAIConfig
	client openai.Client

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

var (
	_ Streamer = (*OpenAIStreamer)(nil)
	_ Provider = (*OpenAIStreamer)(nil)
)

func NewOpenAIStreamer(cfg OpenAIConfig) (*OpenAIStreamer, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 10
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIStreamer{
		config: cfg,
		client: openai.NewClient(opts...),
	}, nil
}

func (s *OpenAIStreamer) Provider() string { return "openai" }
func (s *OpenAIStreamer) Model() string    { return s.config.Model }

// HistoryLen returns the number of retained history messages.
func (s *OpenAIStreamer) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Stream sends text with the retained history. The exchange is added to the
// history only when the reply completes.
func (s *OpenAIStreamer) Stream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		params := openai.ChatCompletionNewParams{
			Messages: s.buildMessages(text),
			Model:    shared.ChatModel(s.config.Model),
		}

		stream := s.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var builder strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			builder.WriteString(delta)
			if !yield(delta, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("openai stream: %w", err))
			return
		}

		s.addExchange(text, builder.String())
	}
}

func (s *OpenAIStreamer) buildMessages(text string) []openai.ChatCompletionMessageParamUnion {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(s.history)+2)
	if s.config.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(s.config.SystemPrompt))
	}
	messages = append(messages, s.history...)
	messages = append(messages, openai.UserMessage(text))
	return messages
}

func (s *OpenAIStreamer) addExchange(user, assistant string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, openai.UserMessage(user), openai.AssistantMessage(assistant))
	if limit := s.config.MaxHistory * 2; len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
}
