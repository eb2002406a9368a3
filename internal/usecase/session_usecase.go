package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/qrave1/CoachSpeak/internal/application/config"
	"github.com/qrave1/CoachSpeak/internal/application/constant"
	"github.com/qrave1/CoachSpeak/internal/application/metric"
	"github.com/qrave1/CoachSpeak/internal/domain"
	"github.com/qrave1/CoachSpeak/internal/domain/transcript"
)

// TranscriptStore - внешний коллаборатор хранения
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, sessionID string, utterances []domain.Utterance) error
	GetTranscript(ctx context.Context, sessionID string) ([]domain.Utterance, error)
}

type SessionUsecase interface {
	// Create идемпотентен: для существующей сессии возвращает её текущее состояние
	Create(ctx context.Context, sessionID string) (domain.Session, error)
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	Exists(sessionID string) bool

	Pause(ctx context.Context, sessionID string) (domain.Session, error)
	Resume(ctx context.Context, sessionID string) (domain.Session, error)
	Destroy(ctx context.Context, sessionID string) error

	SubmitAudio(ctx context.Context, sessionID string, chunk domain.AudioChunk) error
	Subscribe(sessionID string) (*Subscription, error)
	// Transcript возвращает реплики после sinceIndex и позицию курсора для следующего запроса
	Transcript(ctx context.Context, sessionID string, sinceIndex int) ([]domain.Utterance, int, error)

	// Shutdown уничтожает все сессии с сохранением транскриптов
	Shutdown(ctx context.Context) error
}

type sessionUsecase struct {
	cfg      config.SessionConfig
	pipeline *Pipeline
	store    TranscriptStore
	now      func() time.Time

	sessions map[string]*sessionActor
	mu       sync.RWMutex
}

func NewSessionUsecase(cfg config.SessionConfig, pipeline *Pipeline, store TranscriptStore) SessionUsecase {
	return newSessionUsecase(cfg, pipeline, store, time.Now)
}

func newSessionUsecase(cfg config.SessionConfig, pipeline *Pipeline, store TranscriptStore, now func() time.Time) *sessionUsecase {
	return &sessionUsecase{
		cfg:      cfg,
		pipeline: pipeline,
		store:    store,
		now:      now,
		sessions: make(map[string]*sessionActor, 10),
	}
}

func (s *sessionUsecase) Create(ctx context.Context, sessionID string) (domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	actor, exists := s.sessions[sessionID]
	if !exists {
		actor = newSessionActor(sessionID, s.cfg, s.pipeline, s.now)
		s.sessions[sessionID] = actor
		actor.start()
		metric.IncrementActiveSessions()
	}
	s.mu.Unlock()

	if !exists {
		slog.Info("session created", slog.String(constant.SessionID, sessionID))
	}

	return s.snapshot(ctx, actor)
}

func (s *sessionUsecase) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	actor, err := s.get(sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	return s.snapshot(ctx, actor)
}

func (s *sessionUsecase) Exists(sessionID string) bool {
	_, err := s.get(sessionID)
	return err == nil
}

func (s *sessionUsecase) Pause(ctx context.Context, sessionID string) (domain.Session, error) {
	actor, err := s.get(sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	return call(ctx, actor, func(a *sessionActor) (domain.Session, error) {
		return a.pause(), nil
	})
}

func (s *sessionUsecase) Resume(ctx context.Context, sessionID string) (domain.Session, error) {
	actor, err := s.get(sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	return call(ctx, actor, func(a *sessionActor) (domain.Session, error) {
		return a.resume()
	})
}

// Destroy убирает сессию из реестра, останавливает её и передаёт транскрипт в хранилище
func (s *sessionUsecase) Destroy(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	actor, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("destroy %s: %w", sessionID, domain.ErrSessionNotFound)
	}

	actor.stop()
	metric.DecrementActiveSessions()

	utterances := actor.transcript.Snapshot()

	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		saveCtx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
		defer cancel()

		if err := s.store.SaveTranscript(saveCtx, sessionID, utterances); err != nil {
			return retry.RetryableError(err)
		}

		return nil
	})
	if err != nil {
		slog.Error(
			"save transcript",
			slog.Any(constant.Error, err),
			slog.String(constant.SessionID, sessionID),
			slog.Int("utterances", len(utterances)),
		)
		return fmt.Errorf("save transcript of %s: %w", sessionID, err)
	}

	slog.Info(
		"session destroyed",
		slog.String(constant.SessionID, sessionID),
		slog.Int("utterances", len(utterances)),
	)

	return nil
}

func (s *sessionUsecase) SubmitAudio(ctx context.Context, sessionID string, chunk domain.AudioChunk) error {
	actor, err := s.get(sessionID)
	if err != nil {
		return err
	}

	if chunk.ReceivedAt.IsZero() {
		chunk.ReceivedAt = s.now()
	}

	return actor.submit(chunk)
}

func (s *sessionUsecase) Subscribe(sessionID string) (*Subscription, error) {
	actor, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	return actor.broadcaster.subscribe(), nil
}

// Transcript читает живую сессию, а для уничтоженной - сохранённый транскрипт
func (s *sessionUsecase) Transcript(ctx context.Context, sessionID string, sinceIndex int) ([]domain.Utterance, int, error) {
	if actor, err := s.get(sessionID); err == nil {
		return readFrom(actor.transcript, sinceIndex)
	}

	stored, err := s.store.GetTranscript(ctx, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("get stored transcript: %w", err)
	}
	if len(stored) == 0 {
		return nil, 0, fmt.Errorf("transcript %s: %w", sessionID, domain.ErrSessionNotFound)
	}

	return readFrom(transcript.Restore(stored), sinceIndex)
}

func readFrom(t *transcript.Transcript, sinceIndex int) ([]domain.Utterance, int, error) {
	cursor := t.NewCursor(sinceIndex)
	batch := cursor.Next()

	return batch, cursor.Last(), nil
}

func (s *sessionUsecase) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			if err := s.Destroy(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(id)
	}

	wg.Wait()

	return errors.Join(errs...)
}

func (s *sessionUsecase) get(sessionID string) (*sessionActor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actor, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionNotFound)
	}

	return actor, nil
}

func (s *sessionUsecase) snapshot(ctx context.Context, actor *sessionActor) (domain.Session, error) {
	return call(ctx, actor, func(a *sessionActor) (domain.Session, error) {
		return a.snapshot(), nil
	})
}
