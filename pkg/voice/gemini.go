package voice

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiDialer opens live sessions with the Gemini Live API.
type GeminiDialer struct {
	APIKey string
	// BaseURL overrides the API endpoint.
	BaseURL string
}

var _ Dialer = (*GeminiDialer)(nil)

// Dial connects with audio responses, transcription in both directions and
// the prebuilt voice named in cfg.
func (d *GeminiDialer) Dial(ctx context.Context, cfg LiveConfig) (LiveSession, error) {
	if d.APIKey == "" {
		return nil, ErrNoCredential
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  d.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if d.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: d.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	session, err := client.Live.Connect(ctx, cfg.Model, liveConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", err)
	}
	return &geminiSession{session: session}, nil
}

func liveConnectConfig(cfg LiveConfig) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if cfg.VoiceName != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.VoiceName},
			},
		}
	}
	return lc
}

type geminiSession struct {
	session *genai.Session
}

func (g *geminiSession) SendAudio(b Blob) error {
	return g.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: b.Data, MIMEType: b.MIMEType},
	})
}

// Receive skips messages that carry no server content, such as the setup
// acknowledgement.
func (g *geminiSession) Receive() (*ServerMessage, error) {
	for {
		msg, err := g.session.Receive()
		if err != nil {
			return nil, err
		}
		if msg == nil {
			return nil, errors.New("live session returned no message")
		}
		if out := convertServerMessage(msg); out != nil {
			return out, nil
		}
	}
}

func (g *geminiSession) Close() error {
	return g.session.Close()
}

// convertServerMessage extracts transcripts, inline audio and turn signals.
// It returns nil for messages without server content.
func convertServerMessage(msg *genai.LiveServerMessage) *ServerMessage {
	sc := msg.ServerContent
	if sc == nil {
		return nil
	}

	out := &ServerMessage{
		Interrupted:  sc.Interrupted,
		TurnComplete: sc.TurnComplete,
	}
	if sc.InputTranscription != nil {
		out.InputTranscription = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		out.OutputTranscription = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			out.Audio = append(out.Audio, part.InlineData.Data)
		}
	}
	return out
}
