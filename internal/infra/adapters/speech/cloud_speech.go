package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/auth/credentials"
	speechapi "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/qrave1/CoachSpeak/internal/domain"
)

const (
	speechAPIEndpointPort    = 443
	defaultSampleRateHertz   = 16000
	defaultAudioChannelCount = 1
)

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	Model           string
}

// CloudSpeechTranscriber распознаёт каждый чанк синхронным Recognize
type CloudSpeechTranscriber struct {
	client     *speechapi.Client
	recognizer string
	language   string
	model      string
}

func NewCloudSpeechTranscriber(ctx context.Context, cfg CloudSpeechConfig) (*CloudSpeechTranscriber, error) {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "global"
	}

	opts := make([]option.ClientOption, 0, 2)

	if cfg.CredentialsJSON != "" {
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			CredentialsJSON: []byte(cfg.CredentialsJSON),
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
		})
		if err != nil {
			return nil, fmt.Errorf("detect credentials: %w", err)
		}
		opts = append(opts, option.WithAuthCredentials(creds))
	}

	if location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", location, speechAPIEndpointPort)))
	}

	client, err := speechapi.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	slog.Info("cloud speech transcriber ready", "location", location, "model", cfg.Model, "language", cfg.Language)

	return &CloudSpeechTranscriber{
		client:     client,
		recognizer: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", cfg.ProjectID, location),
		language:   cfg.Language,
		model:      strings.TrimSpace(cfg.Model),
	}, nil
}

func (t *CloudSpeechTranscriber) Transcribe(ctx context.Context, chunk domain.AudioChunk) (domain.Transcription, error) {
	config := &speechpb.RecognitionConfig{
		Model:         t.model,
		LanguageCodes: []string{t.language},
		Features: &speechpb.RecognitionFeatures{
			EnableAutomaticPunctuation: true,
		},
	}

	switch chunk.Encoding {
	case domain.EncodingOggOpus:
		config.DecodingConfig = &speechpb.RecognitionConfig_AutoDecodingConfig{
			AutoDecodingConfig: &speechpb.AutoDetectDecodingConfig{},
		}
	case domain.EncodingLinear16, "":
		sampleRate := chunk.SampleRate
		if sampleRate <= 0 {
			sampleRate = defaultSampleRateHertz
		}
		config.DecodingConfig = &speechpb.RecognitionConfig_ExplicitDecodingConfig{
			ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
				Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
				SampleRateHertz:   int32(sampleRate),
				AudioChannelCount: defaultAudioChannelCount,
			},
		}
	default:
		return domain.Transcription{}, fmt.Errorf("cloud speech: unsupported encoding %q", chunk.Encoding)
	}

	resp, err := t.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Recognizer:  t.recognizer,
		Config:      config,
		AudioSource: &speechpb.RecognizeRequest_Content{Content: chunk.Data},
	})
	if err != nil {
		return domain.Transcription{}, classifyRPCError(err)
	}

	var (
		parts      []string
		confidence float32
		counted    int
	)

	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}

		text := strings.TrimSpace(alternatives[0].GetTranscript())
		if text == "" {
			continue
		}

		parts = append(parts, text)
		confidence += alternatives[0].GetConfidence()
		counted++
	}

	text := strings.Join(parts, " ")

	res := domain.Transcription{
		Text:      text,
		EndOfTurn: chunk.EndOfTurnHint || endsSentence(text),
	}
	if counted > 0 {
		res.Confidence = float64(confidence / float32(counted))
	}

	return res, nil
}

func (t *CloudSpeechTranscriber) Close() error {
	return t.client.Close()
}

func classifyRPCError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Unauthenticated, codes.PermissionDenied, codes.Internal:
		return fmt.Errorf("%w: %v", domain.ErrPipelineUnavailable, err)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	default:
		return fmt.Errorf("cloud speech recognize: %w", err)
	}
}
