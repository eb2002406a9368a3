package transcript

import (
	"sync"

	"github.com/qrave1/CoachSpeak/internal/domain"
)

// Transcript - append-only журнал реплик одной сессии.
// Порядок - порядок поступления в Append, а не время начала речи.
type Transcript struct {
	mu         sync.RWMutex
	utterances []domain.Utterance
}

func New() *Transcript {
	return &Transcript{
		utterances: make([]domain.Utterance, 0, 64),
	}
}

// Restore поднимает журнал из сохранённых реплик, индексы назначаются заново по порядку
func Restore(utterances []domain.Utterance) *Transcript {
	t := New()
	for _, u := range utterances {
		t.Append(u)
	}

	return t
}

// Append присваивает реплике следующий индекс и возвращает её
func (t *Transcript) Append(u domain.Utterance) domain.Utterance {
	t.mu.Lock()
	defer t.mu.Unlock()

	u.Index = len(t.utterances)
	t.utterances = append(t.utterances, u)

	return u
}

// Read возвращает реплики с индексом больше sinceIndex.
// Отрицательный sinceIndex - весь журнал.
func (t *Transcript) Read(sinceIndex int) []domain.Utterance {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if sinceIndex >= len(t.utterances)-1 {
		return []domain.Utterance{}
	}

	from := 0
	if sinceIndex >= 0 {
		from = sinceIndex + 1
	}

	out := make([]domain.Utterance, len(t.utterances)-from)
	copy(out, t.utterances[from:])

	return out
}

func (t *Transcript) Snapshot() []domain.Utterance {
	return t.Read(-1)
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.utterances)
}

// Cursor - читатель, который помнит последний выданный индекс
type Cursor struct {
	t    *Transcript
	last int
}

// NewCursor продолжает чтение после lastSeen; -1 для чтения с начала
func (t *Transcript) NewCursor(lastSeen int) *Cursor {
	if lastSeen < -1 {
		lastSeen = -1
	}

	return &Cursor{t: t, last: lastSeen}
}

func (c *Cursor) Next() []domain.Utterance {
	batch := c.t.Read(c.last)
	if len(batch) > 0 {
		c.last = batch[len(batch)-1].Index
	}

	return batch
}

func (c *Cursor) Last() int {
	return c.last
}
