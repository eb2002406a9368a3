package usecase

import (
	"log/slog"
	"sync"

	"github.com/qrave1/CoachSpeak/internal/application/constant"
	"github.com/qrave1/CoachSpeak/internal/domain/events"
)

// Subscription - поток событий сессии для одного подписчика.
// Events закрывается, когда подписчик отстал или сессия уничтожена.
type Subscription struct {
	Events <-chan events.SessionEvent

	id     uint64
	cancel func(uint64)
}

func (s *Subscription) Close() {
	s.cancel(s.id)
}

type broadcaster struct {
	sessionID string
	buffer    int

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan events.SessionEvent
	closed bool
}

func newBroadcaster(sessionID string, buffer int) *broadcaster {
	return &broadcaster{
		sessionID: sessionID,
		buffer:    buffer,
		subs:      make(map[uint64]chan events.SessionEvent, 4),
	}
}

func (b *broadcaster) subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan events.SessionEvent, b.buffer)
	if b.closed {
		close(ch)
		return &Subscription{Events: ch, cancel: func(uint64) {}}
	}

	b.nextID++
	b.subs[b.nextID] = ch

	return &Subscription{Events: ch, id: b.nextID, cancel: b.unsubscribe}
}

func (b *broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// publish не блокируется: отставший подписчик отключается
func (b *broadcaster) publish(ev events.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn(
				"drop slow session subscriber",
				slog.String(constant.SessionID, b.sessionID),
				slog.String(constant.MessageType, ev.Type),
			)
			delete(b.subs, id)
			close(ch)
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
