package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qrave1/CoachSpeak/internal/application/config"
	"github.com/qrave1/CoachSpeak/internal/domain"
	"github.com/qrave1/CoachSpeak/internal/domain/events"
)

// fakeTranscriber считает содержимое чанка текстом
type fakeTranscriber struct {
	gate chan struct{}
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, chunk domain.AudioChunk) (domain.Transcription, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return domain.Transcription{}, ctx.Err()
		}
	}

	if f.err != nil {
		return domain.Transcription{}, f.err
	}

	return domain.Transcription{
		Text:       string(chunk.Data),
		Confidence: 0.9,
		EndOfTurn:  chunk.EndOfTurnHint,
	}, nil
}

type fakeReasoner struct {
	gate chan struct{}
	err  error

	mu        sync.Mutex
	calls     int
	active    int
	maxActive int
	histories [][]domain.Utterance
}

func (f *fakeReasoner) Reason(ctx context.Context, history []domain.Utterance) (string, error) {
	f.mu.Lock()
	f.calls++
	f.active++
	f.maxActive = max(f.maxActive, f.active)
	f.histories = append(f.histories, history)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if f.err != nil {
		return "", f.err
	}

	return "Got it: " + history[len(history)-1].Text, nil
}

func (f *fakeReasoner) stats() (calls, maxActive int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls, f.maxActive
}

type fakeSynthesizer struct {
	duration time.Duration
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string) (domain.Speech, error) {
	return domain.Speech{Audio: []byte(text), Format: "text", Duration: f.duration}, nil
}

type fakeStore struct {
	mu       sync.Mutex
	failures int
	saves    int
	saved    map[string][]domain.Utterance
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string][]domain.Utterance)}
}

func (f *fakeStore) SaveTranscript(_ context.Context, sessionID string, utterances []domain.Utterance) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.saves++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection refused")
	}

	f.saved[sessionID] = utterances

	return nil
}

func (f *fakeStore) GetTranscript(_ context.Context, sessionID string) ([]domain.Utterance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.saved[sessionID], nil
}

// stepClock - каждое обращение сдвигает время на секунду
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(time.Second)

	return c.t
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		AgentTimeout:     2 * time.Second,
		AudioQueueDepth:  8,
		MailboxSize:      16,
		SubscriberBuffer: 128,
		PersistTimeout:   time.Second,
	}
}

func eventOfType(typ string) events.SessionEvent {
	return events.SessionEvent{Type: typ}
}

func clientChunk(text string, endOfTurn bool) domain.AudioChunk {
	return domain.AudioChunk{
		SpeakerRole:   domain.RoleClient,
		Data:          []byte(text),
		Encoding:      domain.EncodingText,
		EndOfTurnHint: endOfTurn,
	}
}

func coachChunk(text string) domain.AudioChunk {
	return domain.AudioChunk{
		SpeakerRole:   domain.RoleCoach,
		Data:          []byte(text),
		Encoding:      domain.EncodingText,
		EndOfTurnHint: true,
	}
}

// collectUntil читает события до первого, удовлетворяющего stop, включительно
func collectUntil(t *testing.T, sub *Subscription, stop func(events.SessionEvent) bool) []events.SessionEvent {
	t.Helper()

	timeout := time.After(3 * time.Second)
	var seen []events.SessionEvent

	for {
		select {
		case ev, ok := <-sub.Events:
			require.True(t, ok, "subscription closed, seen %v", types(seen))

			seen = append(seen, ev)
			if stop(ev) {
				return seen
			}

		case <-timeout:
			t.Fatalf("timed out, seen %v", types(seen))
		}
	}
}

func isType(typ string) func(events.SessionEvent) bool {
	return func(ev events.SessionEvent) bool { return ev.Type == typ }
}

func isPhase(phase domain.AgentPhase) func(events.SessionEvent) bool {
	return func(ev events.SessionEvent) bool {
		return ev.Type == events.TypeAgentState && ev.Phase == phase
	}
}

func types(evs []events.SessionEvent) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}

	return out
}

func phases(evs []events.SessionEvent) []domain.AgentPhase {
	var out []domain.AgentPhase
	for _, ev := range evs {
		if ev.Type == events.TypeAgentState {
			out = append(out, ev.Phase)
		}
	}

	return out
}

func roles(utterances []domain.Utterance) []domain.Role {
	out := make([]domain.Role, 0, len(utterances))
	for _, u := range utterances {
		out = append(out, u.SpeakerRole)
	}

	return out
}
