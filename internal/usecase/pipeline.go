package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qrave1/CoachSpeak/internal/application/metric"
	"github.com/qrave1/CoachSpeak/internal/domain"
)

// Внешние речевые сервисы. Ядро обращается к ним только через Pipeline.

type Transcriber interface {
	Transcribe(ctx context.Context, chunk domain.AudioChunk) (domain.Transcription, error)
}

type Reasoner interface {
	Reason(ctx context.Context, history []domain.Utterance) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (domain.Speech, error)
}

type PipelineResult struct {
	Transcript string        `json:"transcript"`
	Confidence float64       `json:"confidence"`
	EndOfTurn  bool          `json:"endOfTurn"`
	Reply      *domain.Reply `json:"reply,omitempty"`
	// ReplyError - почему ответа нет; отсутствие ответа ошибкой не является
	ReplyError error `json:"-"`
}

// Pipeline - фасад над распознаванием, reasoning и синтезом
type Pipeline struct {
	transcriber Transcriber
	reasoner    Reasoner
	synthesizer Synthesizer

	timeout time.Duration
}

func NewPipeline(transcriber Transcriber, reasoner Reasoner, synthesizer Synthesizer, timeout time.Duration) *Pipeline {
	return &Pipeline{
		transcriber: transcriber,
		reasoner:    reasoner,
		synthesizer: synthesizer,
		timeout:     timeout,
	}
}

// Process - один проход чанка без состояния сессии.
// Ответ строится только для клиента и только по законченной реплике.
func (p *Pipeline) Process(ctx context.Context, sessionID string, role domain.Role, chunk domain.AudioChunk) (PipelineResult, error) {
	if !role.Human() {
		return PipelineResult{}, fmt.Errorf("process %s: %w", role, domain.ErrForbidden)
	}

	chunk.SpeakerRole = role

	res, err := p.Transcribe(ctx, chunk)
	if err != nil {
		return PipelineResult{}, fmt.Errorf("session %s: %w", sessionID, err)
	}

	out := PipelineResult{
		Transcript: res.Text,
		Confidence: res.Confidence,
		EndOfTurn:  res.EndOfTurn,
	}

	if role != domain.RoleClient || res.Text == "" || !res.EndOfTurn {
		return out, nil
	}

	reply, err := p.Respond(ctx, []domain.Utterance{{
		Timestamp:   chunk.ReceivedAt,
		SpeakerRole: domain.RoleClient,
		Text:        res.Text,
		Confidence:  res.Confidence,
	}})
	if err != nil {
		out.ReplyError = err
		return out, nil
	}

	out.Reply = &reply

	return out, nil
}

func (p *Pipeline) Transcribe(ctx context.Context, chunk domain.AudioChunk) (domain.Transcription, error) {
	start := time.Now()

	res, err := p.transcriber.Transcribe(ctx, chunk)
	metric.RecordPipelineStage("transcribe", err, time.Since(start))
	if err != nil {
		return domain.Transcription{}, classify(ctx, "transcribe", err)
	}

	res.Text = strings.TrimSpace(res.Text)
	res.Confidence = clamp(res.Confidence)

	return res, nil
}

// Respond - reason и synthesize под одним таймаутом эпизода
func (p *Pipeline) Respond(ctx context.Context, history []domain.Utterance) (domain.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	text, err := p.reasoner.Reason(ctx, history)
	metric.RecordPipelineStage("reason", err, time.Since(start))
	if err != nil {
		return domain.Reply{}, classify(ctx, "reason", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Reply{}, fmt.Errorf("reason: empty reply: %w", domain.ErrPipelineUnavailable)
	}

	start = time.Now()
	speech, err := p.synthesizer.Synthesize(ctx, text)
	metric.RecordPipelineStage("synthesize", err, time.Since(start))
	if err != nil {
		return domain.Reply{}, classify(ctx, "synthesize", err)
	}

	return domain.Reply{Text: text, Speech: speech}, nil
}

func classify(ctx context.Context, stage string, err error) error {
	switch {
	case errors.Is(err, domain.ErrAgentTimeout), errors.Is(err, domain.ErrPipelineUnavailable):
		return fmt.Errorf("%s: %w", stage, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", stage, domain.ErrAgentTimeout)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", stage, err)
	default:
		return fmt.Errorf("%s: %w: %v", stage, domain.ErrPipelineUnavailable, err)
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
