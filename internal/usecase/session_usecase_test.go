package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/CoachSpeak/internal/domain"
	"github.com/qrave1/CoachSpeak/internal/domain/events"
)

type sessionFixture struct {
	uc          *sessionUsecase
	transcriber *fakeTranscriber
	reasoner    *fakeReasoner
	store       *fakeStore
}

func newSessionFixture(t *testing.T, playback time.Duration) *sessionFixture {
	t.Helper()

	f := &sessionFixture{
		transcriber: &fakeTranscriber{},
		reasoner:    &fakeReasoner{},
		store:       newFakeStore(),
	}

	cfg := testSessionConfig()
	pipeline := NewPipeline(f.transcriber, f.reasoner, &fakeSynthesizer{duration: playback}, cfg.AgentTimeout)
	f.uc = newSessionUsecase(cfg, pipeline, f.store, time.Now)

	t.Cleanup(func() {
		_ = f.uc.Shutdown(context.Background())
	})

	return f
}

func (f *sessionFixture) start(t *testing.T, sessionID string) *Subscription {
	t.Helper()

	_, err := f.uc.Create(context.Background(), sessionID)
	require.NoError(t, err)

	sub, err := f.uc.Subscribe(sessionID)
	require.NoError(t, err)

	return sub
}

func TestSessionClientTurnHappyPath(t *testing.T) {
	f := newSessionFixture(t, 20*time.Millisecond)
	sub := f.start(t, "s1")

	require.NoError(t, f.uc.SubmitAudio(context.Background(), "s1", clientChunk("I need help with my setup", true)))

	seen := collectUntil(t, sub, isPhase(domain.AgentListening))

	assert.Equal(t,
		[]domain.AgentPhase{domain.AgentThinking, domain.AgentSpeaking, domain.AgentListening},
		phases(seen),
	)
	assert.Equal(t, []string{
		events.TypeClientSpeaking,
		events.TypeAgentState,
		events.TypeAIThinking,
		events.TypeAgentState,
		events.TypeAISpeaking,
		events.TypeAIFinishedSpeaking,
		events.TypeAgentState,
	}, types(seen))

	utterances, _, err := f.uc.Transcript(context.Background(), "s1", -1)
	require.NoError(t, err)
	require.Len(t, utterances, 2)

	assert.Equal(t, []domain.Role{domain.RoleClient, domain.RoleAgent}, roles(utterances))
	assert.Equal(t, "I need help with my setup", utterances[0].Text)
	assert.Equal(t, "Got it: I need help with my setup", utterances[1].Text)
	assert.Equal(t, 0, utterances[0].Index)
	assert.Equal(t, 1, utterances[1].Index)

	speaking := seen[4]
	assert.Equal(t, "Got it: I need help with my setup", speaking.Text)
	assert.Equal(t, "s1", speaking.SessionID)
	require.NotNil(t, speaking.Utterance)
	assert.Equal(t, 1, speaking.Utterance.Index)
}

func TestSessionClientTurnWaitsForEndOfTurn(t *testing.T) {
	f := newSessionFixture(t, 10*time.Millisecond)
	sub := f.start(t, "s1")

	ctx := context.Background()
	require.NoError(t, f.uc.SubmitAudio(ctx, "s1", clientChunk("I need", false)))
	require.NoError(t, f.uc.SubmitAudio(ctx, "s1", clientChunk("help", true)))

	seen := collectUntil(t, sub, isType(events.TypeAIThinking))
	assert.Equal(t, "I need help", seen[len(seen)-1].Text)

	collectUntil(t, sub, isPhase(domain.AgentListening))

	calls, _ := f.reasoner.stats()
	assert.Equal(t, 1, calls)
}

func TestSessionCoachNeverTriggersReply(t *testing.T) {
	f := newSessionFixture(t, 10*time.Millisecond)
	sub := f.start(t, "s1")

	for _, text := range []string{"Ask about the router.", "What is the model?", "Help them now!"} {
		require.NoError(t, f.uc.SubmitAudio(context.Background(), "s1", coachChunk(text)))
	}

	count := 0
	seen := collectUntil(t, sub, func(ev events.SessionEvent) bool {
		if ev.Type == events.TypeCoachTranscription {
			count++
		}
		return count == 3
	})

	assert.NotContains(t, types(seen), events.TypeAIThinking)
	assert.Empty(t, phases(seen))

	session, err := f.uc.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentListening, session.AgentPhase)

	calls, _ := f.reasoner.stats()
	assert.Zero(t, calls)

	utterances, _, err := f.uc.Transcript(context.Background(), "s1", -1)
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleCoach, domain.RoleCoach, domain.RoleCoach}, roles(utterances))
}

func TestSessionCoachWhileAgentSpeaking(t *testing.T) {
	f := newSessionFixture(t, 300*time.Millisecond)
	sub := f.start(t, "s1")
	ctx := context.Background()

	require.NoError(t, f.uc.SubmitAudio(ctx, "s1", clientChunk("My camera is off.", true)))
	before := collectUntil(t, sub, isType(events.TypeAISpeaking))

	require.NoError(t, f.uc.SubmitAudio(ctx, "s1", coachChunk("Check the privacy switch.")))
	after := collectUntil(t, sub, isPhase(domain.AgentListening))

	assert.Equal(t,
		[]domain.AgentPhase{domain.AgentThinking, domain.AgentSpeaking, domain.AgentListening},
		phases(append(before, after...)),
	)
	assert.Equal(t, events.TypeCoachTranscription, after[0].Type)

	utterances, _, err := f.uc.Transcript(ctx, "s1", -1)
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleClient, domain.RoleAgent, domain.RoleCoach}, roles(utterances))

	calls, _ := f.reasoner.stats()
	assert.Equal(t, 1, calls)
}

func TestSessionQueuesTurnDuringEpisode(t *testing.T) {
	f := newSessionFixture(t, 10*time.Millisecond)
	f.reasoner.gate = make(chan struct{})
	sub := f.start(t, "s1")
	ctx := context.Background()

	require.NoError(t, f.uc.SubmitAudio(ctx, "s1", clientChunk("first question", true)))
	collectUntil(t, sub, isType(events.TypeAIThinking))

	require.NoError(t, f.uc.SubmitAudio(ctx, "s1", clientChunk("second question", true)))
	collectUntil(t, sub, func(ev events.SessionEvent) bool {
		return ev.Type == events.TypeClientSpeaking && ev.Utterance.Text == "second question"
	})

	close(f.reasoner.gate)

	finished := 0
	seen := collectUntil(t, sub, func(ev events.SessionEvent) bool {
		if ev.Type == events.TypeAIFinishedSpeaking {
			finished++
		}
		return finished == 2
	})

	thinking := make([]string, 0, 1)
	for _, ev := range seen {
		if ev.Type == events.TypeAIThinking {
			thinking = append(thinking, ev.Text)
		}
	}
	assert.Equal(t, []string{"second question"}, thinking)

	calls, maxActive := f.reasoner.stats()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, maxActive)
}

func TestSessionPauseDiscardsLateReply(t *testing.T) {
	f := newSessionFixture(t, 10*time.Millisecond)
	f.reasoner.gate = make(chan struct{})
	sub := f.start(t, "s1")
	ctx := context.Background()

	require.NoError(t, f.uc.SubmitAudio(ctx, "s1", clientChunk("Are you there?", true)))
	collectUntil(t, sub, isType(events.TypeAIThinking))

	session, err := f.uc.Pause(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionPaused, session.Phase)
	assert.Equal(t, domain.AgentPaused, session.AgentPhase)

	close(f.reasoner.gate)

	require.Never(t, func() bool {
		utterances, _, err := f.uc.Transcript(ctx, "s1", -1)
		return err != nil || len(utterances) != 1
	}, 300*time.Millisecond, 20*time.Millisecond)

	session, err = f.uc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentPaused, session.AgentPhase)

	for {
		select {
		case ev := <-sub.Events:
			assert.NotEqual(t, events.TypeAISpeaking, ev.Type)
			continue
		default:
		}
		break
	}
}

func TestSessionPauseIsIdempotent(t *testing.T) {
	clock := &stepClock{t: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}

	cfg := testSessionConfig()
	pipeline := NewPipeline(&fakeTranscriber{}, &fakeReasoner{}, &fakeSynthesizer{}, cfg.AgentTimeout)
	uc := newSessionUsecase(cfg, pipeline, newFakeStore(), clock.now)
	t.Cleanup(func() { _ = uc.Shutdown(context.Background()) })

	ctx := context.Background()
	_, err := uc.Create(ctx, "s1")
	require.NoError(t, err)

	first, err := uc.Pause(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, first.PausedAt)

	second, err := uc.Pause(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, second.PausedAt)
	assert.Equal(t, *first.PausedAt, *second.PausedAt)

	resumed, err := uc.Resume(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, resumed.Phase)
	assert.Equal(t, domain.AgentListening, resumed.AgentPhase)
	require.NotNil(t, resumed.ResumedAt)
	assert.True(t, resumed.ResumedAt.After(*first.PausedAt))

	_, err = uc.Resume(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotPaused)
}

func TestSessionResumeActiveFails(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.start(t, "s1")

	_, err := f.uc.Resume(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrNotPaused)
}

func TestSessionAgentTimeoutFailsOpen(t *testing.T) {
	f := &sessionFixture{
		transcriber: &fakeTranscriber{},
		reasoner:    &fakeReasoner{gate: make(chan struct{})},
		store:       newFakeStore(),
	}

	cfg := testSessionConfig()
	pipeline := NewPipeline(f.transcriber, f.reasoner, &fakeSynthesizer{}, 50*time.Millisecond)
	f.uc = newSessionUsecase(cfg, pipeline, f.store, time.Now)
	t.Cleanup(func() { _ = f.uc.Shutdown(context.Background()) })

	sub := f.start(t, "s1")

	require.NoError(t, f.uc.SubmitAudio(context.Background(), "s1", clientChunk("Hello?", true)))

	seen := collectUntil(t, sub, isPhase(domain.AgentListening))

	var agentErr *events.SessionEvent
	for i := range seen {
		if seen[i].Type == events.TypeAgentError {
			agentErr = &seen[i]
		}
	}
	require.NotNil(t, agentErr)
	assert.Equal(t, "agent_timeout", agentErr.Code)

	assert.Equal(t, []domain.AgentPhase{domain.AgentThinking, domain.AgentListening}, phases(seen))
	assert.NotContains(t, types(seen), events.TypeAISpeaking)

	utterances, _, err := f.uc.Transcript(context.Background(), "s1", -1)
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleClient}, roles(utterances))

	// после сбоя сессия снова принимает реплики
	close(f.reasoner.gate)
	require.NoError(t, f.uc.SubmitAudio(context.Background(), "s1", clientChunk("Still there?", true)))
	collectUntil(t, sub, isType(events.TypeAISpeaking))
}

func TestSessionReasonerFailureReportsUnavailable(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.reasoner.err = errors.New("503 from upstream")
	sub := f.start(t, "s1")

	require.NoError(t, f.uc.SubmitAudio(context.Background(), "s1", clientChunk("Hello?", true)))

	seen := collectUntil(t, sub, isType(events.TypeAgentError))
	assert.Equal(t, "pipeline_unavailable", seen[len(seen)-1].Code)

	collectUntil(t, sub, isPhase(domain.AgentListening))
}

func TestSessionTranscriptionFailureReportsError(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.transcriber.err = domain.ErrPipelineUnavailable
	sub := f.start(t, "s1")

	require.NoError(t, f.uc.SubmitAudio(context.Background(), "s1", coachChunk("Can you hear me?")))

	seen := collectUntil(t, sub, isType(events.TypeAgentError))
	last := seen[len(seen)-1]
	assert.Equal(t, domain.RoleCoach, last.SpeakerRole)
	assert.Equal(t, "pipeline_unavailable", last.Code)

	utterances, _, err := f.uc.Transcript(context.Background(), "s1", -1)
	require.NoError(t, err)
	assert.Empty(t, utterances)
}

func TestSessionBacklogDropsOldestChunk(t *testing.T) {
	f := &sessionFixture{
		transcriber: &fakeTranscriber{gate: make(chan struct{})},
		reasoner:    &fakeReasoner{},
		store:       newFakeStore(),
	}

	cfg := testSessionConfig()
	cfg.AudioQueueDepth = 1
	pipeline := NewPipeline(f.transcriber, f.reasoner, &fakeSynthesizer{}, cfg.AgentTimeout)
	f.uc = newSessionUsecase(cfg, pipeline, f.store, time.Now)
	t.Cleanup(func() { _ = f.uc.Shutdown(context.Background()) })

	sub := f.start(t, "s1")

	// один чанк в распознавании, один в очереди: третий обязан вытеснить старый
	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, f.uc.SubmitAudio(context.Background(), "s1", clientChunk(text, false)))
	}

	seen := collectUntil(t, sub, isType(events.TypeBacklog))
	backlog := seen[len(seen)-1]
	assert.Equal(t, domain.RoleClient, backlog.SpeakerRole)
	assert.Equal(t, 1, backlog.Dropped)

	close(f.transcriber.gate)
}

func TestSessionRejectsAgentAudio(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.start(t, "s1")

	err := f.uc.SubmitAudio(context.Background(), "s1", domain.AudioChunk{SpeakerRole: domain.RoleAgent, Data: []byte("x")})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSessionCreateIsIdempotent(t *testing.T) {
	f := newSessionFixture(t, 0)
	ctx := context.Background()

	first, err := f.uc.Create(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, first.Phase)
	assert.Equal(t, domain.AgentListening, first.AgentPhase)

	second, err := f.uc.Create(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	generated, err := f.uc.Create(ctx, "  ")
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID)
	assert.True(t, f.uc.Exists(generated.ID))
}

func TestSessionUnknownID(t *testing.T) {
	f := newSessionFixture(t, 0)
	ctx := context.Background()

	_, err := f.uc.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = f.uc.Pause(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = f.uc.Resume(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	err = f.uc.SubmitAudio(ctx, "missing", clientChunk("hi", true))
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = f.uc.Subscribe("missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, _, err = f.uc.Transcript(ctx, "missing", -1)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	assert.ErrorIs(t, f.uc.Destroy(ctx, "missing"), domain.ErrSessionNotFound)
}

func TestSessionDestroyPersistsTranscript(t *testing.T) {
	f := newSessionFixture(t, 10*time.Millisecond)
	sub := f.start(t, "s1")
	ctx := context.Background()

	require.NoError(t, f.uc.SubmitAudio(ctx, "s1", clientChunk("Thanks for the help.", true)))
	collectUntil(t, sub, isPhase(domain.AgentListening))

	require.NoError(t, f.uc.Destroy(ctx, "s1"))
	assert.False(t, f.uc.Exists("s1"))

	saved := f.store.saved["s1"]
	assert.Equal(t, []domain.Role{domain.RoleClient, domain.RoleAgent}, roles(saved))

	// подписка закрыта вместе с сессией
	for range sub.Events {
	}

	// после уничтожения транскрипт читается из хранилища
	tail, last, err := f.uc.Transcript(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, domain.RoleAgent, tail[0].SpeakerRole)
	assert.Equal(t, 1, last)

	// курсор за концом сохранённого журнала ничего не повторяет
	tail, last, err = f.uc.Transcript(ctx, "s1", math.MaxInt)
	require.NoError(t, err)
	assert.Empty(t, tail)
	assert.Equal(t, math.MaxInt, last)

	_, err = f.uc.Pause(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionDestroyRetriesSave(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.store.failures = 2
	f.start(t, "s1")

	require.NoError(t, f.uc.Destroy(context.Background(), "s1"))

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	assert.Equal(t, 3, f.store.saves)
}

func TestSessionDestroyGivesUpAfterRetries(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.store.failures = 10
	f.start(t, "s1")

	err := f.uc.Destroy(context.Background(), "s1")
	require.Error(t, err)
	assert.False(t, f.uc.Exists("s1"))

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	assert.Equal(t, 4, f.store.saves)
}

func TestSessionShutdownDestroysAll(t *testing.T) {
	f := newSessionFixture(t, 0)
	f.start(t, "s1")
	f.start(t, "s2")

	require.NoError(t, f.uc.Shutdown(context.Background()))

	assert.False(t, f.uc.Exists("s1"))
	assert.False(t, f.uc.Exists("s2"))

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	assert.Equal(t, 2, f.store.saves)
}
