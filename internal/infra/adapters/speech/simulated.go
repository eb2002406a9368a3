package speech

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/qrave1/CoachSpeak/internal/domain"
)

// SimulatedTranscriber понимает только текстовые чанки.
// Для настоящего аудио возвращает пустой результат.
type SimulatedTranscriber struct{}

func NewSimulatedTranscriber() *SimulatedTranscriber {
	return &SimulatedTranscriber{}
}

func (s *SimulatedTranscriber) Transcribe(ctx context.Context, chunk domain.AudioChunk) (domain.Transcription, error) {
	if err := ctx.Err(); err != nil {
		return domain.Transcription{}, err
	}

	if chunk.Encoding != domain.EncodingText || !utf8.Valid(chunk.Data) {
		return domain.Transcription{EndOfTurn: chunk.EndOfTurnHint}, nil
	}

	text := strings.TrimSpace(string(chunk.Data))

	return domain.Transcription{
		Text:       text,
		Confidence: 1,
		EndOfTurn:  chunk.EndOfTurnHint || endsSentence(text),
	}, nil
}

type SimulatedReasoner struct {
	// Delay - имитация задержки внешнего сервиса
	Delay time.Duration
}

func NewSimulatedReasoner(delay time.Duration) *SimulatedReasoner {
	return &SimulatedReasoner{Delay: delay}
}

func (s *SimulatedReasoner) Reason(ctx context.Context, history []domain.Utterance) (string, error) {
	if err := wait(ctx, s.Delay); err != nil {
		return "", err
	}

	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].SpeakerRole == domain.RoleClient {
			last = history[i].Text
			break
		}
	}

	if last == "" {
		return "I'm here whenever you're ready.", nil
	}

	return fmt.Sprintf("I hear you: %q. Let's go through it step by step.", last), nil
}

type SimulatedSynthesizer struct {
	// WordDuration - сколько "звучит" одно слово ответа
	WordDuration time.Duration
	MaxDuration  time.Duration
}

func NewSimulatedSynthesizer(wordDuration, maxDuration time.Duration) *SimulatedSynthesizer {
	return &SimulatedSynthesizer{WordDuration: wordDuration, MaxDuration: maxDuration}
}

func (s *SimulatedSynthesizer) Synthesize(ctx context.Context, text string) (domain.Speech, error) {
	if err := ctx.Err(); err != nil {
		return domain.Speech{}, err
	}

	duration := time.Duration(len(strings.Fields(text))) * s.WordDuration
	if s.MaxDuration > 0 && duration > s.MaxDuration {
		duration = s.MaxDuration
	}

	return domain.Speech{Format: FormatText, Duration: duration}, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
