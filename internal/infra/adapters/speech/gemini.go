package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/qrave1/CoachSpeak/internal/domain"
)

const (
	geminiTTSSampleRate = 24000
	systemInstruction   = "You are a voice assistant in a live coaching session between a client and a coach. " +
		"Answer the client briefly and concretely, in one or two spoken sentences. Never answer for the coach."
)

type GeminiConfig struct {
	APIKey   string
	Model    string
	TTSModel string
	Voice    string
}

// GeminiAgent - reasoning и synthesis через Gemini API
type GeminiAgent struct {
	client   *genai.Client
	model    string
	ttsModel string
	voice    string
}

func NewGeminiAgent(ctx context.Context, cfg GeminiConfig) (*GeminiAgent, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiAgent{
		client:   client,
		model:    cfg.Model,
		ttsModel: cfg.TTSModel,
		voice:    cfg.Voice,
	}, nil
}

func (g *GeminiAgent) Reason(ctx context.Context, history []domain.Utterance) (string, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, u := range history {
		var role genai.Role = genai.RoleUser
		if u.SpeakerRole == domain.RoleAgent {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(u.Text, role))
	}

	if len(contents) == 0 {
		return "", errors.New("gemini: empty conversation")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	})
	if err != nil {
		return "", classifyGenAIError(err)
	}

	return strings.TrimSpace(resp.Text()), nil
}

func (g *GeminiAgent) Synthesize(ctx context.Context, text string) (domain.Speech, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.ttsModel, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
	})
	if err != nil {
		return domain.Speech{}, classifyGenAIError(err)
	}

	var audio []byte
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil {
				audio = append(audio, part.InlineData.Data...)
			}
		}
	}

	if len(audio) == 0 {
		return domain.Speech{}, errors.New("gemini tts: empty audio")
	}

	// 16 бит на сэмпл, моно
	samples := len(audio) / 2

	return domain.Speech{
		Audio:    audio,
		Format:   FormatPCM24k,
		Duration: time.Duration(samples) * time.Second / geminiTTSSampleRate,
	}, nil
}

func classifyGenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	return fmt.Errorf("%w: gemini: %v", domain.ErrPipelineUnavailable, err)
}
