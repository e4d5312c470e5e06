package textchat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is the text chat model.
const DefaultGeminiModel = "gemini-2.5-flash"

// ErrNoAPIKey is returned when a streamer is built without a credential.
var ErrNoAPIKey = errors.New("textchat: api key is required")

// GeminiConfig configures a GeminiStreamer.
type GeminiConfig struct {
	APIKey       string
	Model        string
	SystemPrompt string
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// GeminiStreamer holds one Gemini chat session. The session keeps the
// conversation history between sends.
type GeminiStreamer struct {
	model string
	chat  *genai.Chat
}

var (
	_ Streamer = (*GeminiStreamer)(nil)
	_ Provider = (*GeminiStreamer)(nil)
)

// NewGeminiStreamer creates a client and opens a chat session primed with
// the system prompt.
func NewGeminiStreamer(ctx context.Context, cfg GeminiConfig) (*GeminiStreamer, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	chat, err := client.Chats.Create(ctx, cfg.Model, geminiChatConfig(cfg.SystemPrompt), nil)
	if err != nil {
		return nil, fmt.Errorf("create gemini chat: %w", err)
	}

	return &GeminiStreamer{model: cfg.Model, chat: chat}, nil
}

func (g *GeminiStreamer) Provider() string { return "gemini" }
func (g *GeminiStreamer) Model() string    { return g.model }

// Stream sends text on the chat session and yields each streamed chunk.
func (g *GeminiStreamer) Stream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range g.chat.SendMessageStream(ctx, genai.Part{Text: text}) {
			if err != nil {
				yield("", fmt.Errorf("gemini stream: %w", err))
				return
			}
			if chunk := collectGeminiText(resp); chunk != "" {
				if !yield(chunk, nil) {
					return
				}
			}
		}
	}
}

func geminiChatConfig(systemPrompt string) *genai.GenerateContentConfig {
	if systemPrompt == "" {
		return nil
	}
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: systemPrompt},
			},
		},
	}
}

// collectGeminiText joins the text parts of every candidate in resp.
func collectGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.Text == "" || part.Thought {
				continue
			}
			builder.WriteString(part.Text)
		}
	}

	return builder.String()
}
