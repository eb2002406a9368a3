package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/qrave1/CoachSpeak/internal/application/config"
	"github.com/qrave1/CoachSpeak/internal/application/constant"
	"github.com/qrave1/CoachSpeak/internal/application/metric"
	"github.com/qrave1/CoachSpeak/internal/domain"
	"github.com/qrave1/CoachSpeak/internal/domain/agent"
	"github.com/qrave1/CoachSpeak/internal/domain/events"
	"github.com/qrave1/CoachSpeak/internal/domain/transcript"
)

// command исполняется только внутри loop
type command func(a *sessionActor)

// sessionActor владеет состоянием одной сессии: фазой, AgentState и транскриптом.
// Все изменения проходят через mailbox и выполняются одной горутиной.
type sessionActor struct {
	id  string
	cfg config.SessionConfig
	now func() time.Time

	pipeline    *Pipeline
	transcript  *transcript.Transcript
	broadcaster *broadcaster

	mailbox chan command
	queues  map[domain.Role]*chunkQueue

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	// поля ниже меняет только loop
	session domain.Session
	agent   agent.State
	turn    []string
}

func newSessionActor(id string, cfg config.SessionConfig, pipeline *Pipeline, now func() time.Time) *sessionActor {
	ctx, cancel := context.WithCancel(context.Background())

	return &sessionActor{
		id:          id,
		cfg:         cfg,
		now:         now,
		pipeline:    pipeline,
		transcript:  transcript.New(),
		broadcaster: newBroadcaster(id, cfg.SubscriberBuffer),
		mailbox:     make(chan command, cfg.MailboxSize),
		queues: map[domain.Role]*chunkQueue{
			domain.RoleClient: newChunkQueue(cfg.AudioQueueDepth),
			domain.RoleCoach:  newChunkQueue(cfg.AudioQueueDepth),
		},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		session: domain.Session{
			ID:        id,
			Phase:     domain.SessionActive,
			CreatedAt: now(),
		},
		agent: agent.Initial(),
	}
}

func (a *sessionActor) start() {
	go a.loop()

	for role, q := range a.queues {
		a.wg.Add(1)
		go a.transcribeLoop(role, q)
	}
}

// stop дожидается выхода loop, воркеров и эпизодов
func (a *sessionActor) stop() {
	a.cancel()
	<-a.done
	a.wg.Wait()
	a.broadcaster.close()
}

func (a *sessionActor) loop() {
	defer close(a.done)

	for {
		select {
		case <-a.ctx.Done():
			return
		case cmd := <-a.mailbox:
			cmd(a)
		}
	}
}

func (a *sessionActor) post(cmd command) error {
	select {
	case <-a.ctx.Done():
		return domain.ErrSessionClosed
	default:
	}

	select {
	case a.mailbox <- cmd:
		return nil
	case <-a.ctx.Done():
		return domain.ErrSessionClosed
	}
}

// call выполняет fn в loop и возвращает результат вызывающему
func call[T any](ctx context.Context, a *sessionActor, fn func(a *sessionActor) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	var zero T
	reply := make(chan result, 1)

	err := a.post(func(a *sessionActor) {
		v, err := fn(a)
		reply <- result{value: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-reply:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-a.done:
		return zero, domain.ErrSessionClosed
	}
}

func (a *sessionActor) submit(chunk domain.AudioChunk) error {
	if a.ctx.Err() != nil {
		return domain.ErrSessionClosed
	}

	q, ok := a.queues[chunk.SpeakerRole]
	if !ok {
		return fmt.Errorf("audio from %q: %w", chunk.SpeakerRole, domain.ErrForbidden)
	}

	if dropped := q.push(chunk); dropped > 0 {
		metric.RecordDroppedChunk(string(chunk.SpeakerRole))

		slog.Warn(
			"audio backlog, oldest chunk dropped",
			slog.String(constant.SessionID, a.id),
			slog.String(constant.Role, string(chunk.SpeakerRole)),
			slog.Int("dropped", dropped),
		)

		a.publish(events.SessionEvent{
			Type:        events.TypeBacklog,
			SpeakerRole: chunk.SpeakerRole,
			Dropped:     dropped,
			Message:     "audio queue is full, oldest chunk dropped",
		})
	}

	return nil
}

// transcribeLoop сохраняет порядок чанков одного говорящего
func (a *sessionActor) transcribeLoop(role domain.Role, q *chunkQueue) {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case chunk := <-q.pop():
			ctx, cancel := context.WithTimeout(a.ctx, a.cfg.AgentTimeout)
			res, err := a.pipeline.Transcribe(ctx, chunk)
			cancel()

			if a.ctx.Err() != nil {
				return
			}

			if postErr := a.post(func(a *sessionActor) { a.onTranscription(chunk, res, err) }); postErr != nil {
				return
			}
		}
	}
}

func (a *sessionActor) onTranscription(chunk domain.AudioChunk, res domain.Transcription, err error) {
	if err != nil {
		slog.Error(
			"transcribe audio chunk",
			slog.Any(constant.Error, err),
			slog.String(constant.SessionID, a.id),
			slog.String(constant.Role, string(chunk.SpeakerRole)),
		)

		metric.RecordAgentError(domain.ErrorCode(err))

		a.publish(events.SessionEvent{
			Type:        events.TypeAgentError,
			SpeakerRole: chunk.SpeakerRole,
			Code:        domain.ErrorCode(err),
			Message:     "could not transcribe audio",
		})
		return
	}

	var appended *domain.Utterance
	if res.Text != "" {
		u := a.transcript.Append(domain.Utterance{
			Timestamp:   chunk.ReceivedAt,
			SpeakerRole: chunk.SpeakerRole,
			Text:        res.Text,
			Confidence:  res.Confidence,
		})
		appended = &u
	}

	switch chunk.SpeakerRole {
	case domain.RoleCoach:
		if appended != nil {
			a.publish(events.SessionEvent{Type: events.TypeCoachTranscription, SpeakerRole: domain.RoleCoach, Utterance: appended})
		}
		a.apply(agent.CoachSpoke{})

	case domain.RoleClient:
		if appended != nil {
			a.publish(events.SessionEvent{Type: events.TypeClientSpeaking, SpeakerRole: domain.RoleClient, Utterance: appended})
			a.turn = append(a.turn, appended.Text)
		}

		if res.EndOfTurn && len(a.turn) > 0 {
			text := strings.Join(a.turn, " ")
			a.turn = nil
			a.apply(agent.ClientTurnEnded{Text: text})
		}
	}
}

func (a *sessionActor) apply(ev agent.Event) {
	next, effects := agent.Transition(a.agent, ev)
	a.agent = next

	for _, eff := range effects {
		a.execute(eff)
	}
}

func (a *sessionActor) execute(eff agent.Effect) {
	switch e := eff.(type) {
	case agent.PhaseChanged:
		metric.RecordAgentTransition(string(e.From), string(e.To))
		a.publish(events.SessionEvent{Type: events.TypeAgentState, Phase: e.To})

	case agent.RequestReply:
		a.publish(events.SessionEvent{Type: events.TypeAIThinking, Episode: e.Episode, Text: e.Prompt})
		a.startEpisode(e.Episode)

	case agent.Speak:
		u := a.transcript.Append(domain.Utterance{
			Timestamp:   a.now(),
			SpeakerRole: domain.RoleAgent,
			Text:        e.Reply.Text,
			Confidence:  1,
		})

		a.publish(events.SessionEvent{
			Type:        events.TypeAISpeaking,
			Episode:     e.Episode,
			SpeakerRole: domain.RoleAgent,
			Utterance:   &u,
			Text:        e.Reply.Text,
			Audio:       e.Reply.Speech.Audio,
			AudioFormat: e.Reply.Speech.Format,
		})

		a.schedulePlayback(e.Episode, e.Reply.Speech.Duration)

	case agent.FinishSpeaking:
		a.publish(events.SessionEvent{Type: events.TypeAIFinishedSpeaking, Episode: e.Episode})

	case agent.ReportError:
		code := domain.ErrorCode(e.Err)
		metric.RecordAgentError(code)

		slog.Warn(
			"agent episode failed",
			slog.Any(constant.Error, e.Err),
			slog.String(constant.SessionID, a.id),
			slog.Uint64(constant.Episode, e.Episode),
		)

		a.publish(events.SessionEvent{
			Type:    events.TypeAgentError,
			Episode: e.Episode,
			Code:    code,
			Message: "agent is temporarily silent",
		})

	case agent.DiscardReply:
		slog.Debug(
			"discard agent reply",
			slog.String(constant.SessionID, a.id),
			slog.Uint64(constant.Episode, e.Episode),
			slog.String("reason", e.Reason),
		)
	}
}

// startEpisode: вызов reasoning не блокирует loop, результат приходит событием
func (a *sessionActor) startEpisode(episode uint64) {
	history := a.reasoningContext()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		reply, err := a.pipeline.Respond(a.ctx, history)
		if a.ctx.Err() != nil {
			return
		}

		var ev agent.Event = agent.ReplyReady{Episode: episode, Reply: reply}
		if err != nil {
			ev = agent.ReplyFailed{Episode: episode, Err: err}
		}

		_ = a.post(func(a *sessionActor) { a.apply(ev) })
	}()
}

func (a *sessionActor) schedulePlayback(episode uint64, d time.Duration) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-a.ctx.Done():
			return
		case <-timer.C:
		}

		_ = a.post(func(a *sessionActor) { a.apply(agent.PlaybackFinished{Episode: episode}) })
	}()
}

// reasoningContext - реплики клиента и агента; коуч в контекст reasoning не попадает
func (a *sessionActor) reasoningContext() []domain.Utterance {
	all := a.transcript.Snapshot()

	history := make([]domain.Utterance, 0, len(all))
	for _, u := range all {
		if u.SpeakerRole == domain.RoleCoach {
			continue
		}
		history = append(history, u)
	}

	return history
}

func (a *sessionActor) pause() domain.Session {
	if a.session.Phase == domain.SessionPaused {
		return a.snapshot()
	}

	now := a.now()
	a.session.Phase = domain.SessionPaused
	a.session.PausedAt = &now
	a.turn = nil

	a.apply(agent.PauseRequested{})

	snap := a.snapshot()
	a.publish(events.SessionEvent{Type: events.TypePause, Session: &snap})

	return snap
}

func (a *sessionActor) resume() (domain.Session, error) {
	if a.session.Phase != domain.SessionPaused {
		return domain.Session{}, domain.ErrNotPaused
	}

	now := a.now()
	a.session.Phase = domain.SessionActive
	a.session.ResumedAt = &now

	a.apply(agent.ResumeRequested{})

	snap := a.snapshot()
	a.publish(events.SessionEvent{Type: events.TypeResume, Session: &snap})

	return snap, nil
}

func (a *sessionActor) snapshot() domain.Session {
	s := a.session
	s.AgentPhase = a.agent.Phase

	if a.session.PausedAt != nil {
		t := *a.session.PausedAt
		s.PausedAt = &t
	}
	if a.session.ResumedAt != nil {
		t := *a.session.ResumedAt
		s.ResumedAt = &t
	}

	return s
}

func (a *sessionActor) publish(ev events.SessionEvent) {
	ev.SessionID = a.id
	if ev.Timestamp.IsZero() {
		ev.Timestamp = a.now()
	}

	a.broadcaster.publish(ev)
}
