package transcript

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/CoachSpeak/internal/domain"
)

func utterance(role domain.Role, text string) domain.Utterance {
	return domain.Utterance{
		Timestamp:   time.Now(),
		SpeakerRole: role,
		Text:        text,
		Confidence:  0.9,
	}
}

func TestAppendAssignsIndexes(t *testing.T) {
	tr := New()

	first := tr.Append(utterance(domain.RoleClient, "hi"))
	second := tr.Append(utterance(domain.RoleAgent, "hello"))

	assert.Equal(t, 0, first.Index)
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, 2, tr.Len())
}

func TestRead(t *testing.T) {
	tr := New()
	for _, text := range []string{"a", "b", "c"} {
		tr.Append(utterance(domain.RoleClient, text))
	}

	all := tr.Read(-1)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Text)

	tail := tr.Read(0)
	require.Len(t, tail, 2)
	assert.Equal(t, 1, tail[0].Index)

	assert.Empty(t, tr.Read(2))
	assert.Empty(t, tr.Read(100))
	assert.NotNil(t, tr.Read(100))
	assert.Len(t, tr.Read(-50), 3)

	// курсор на границе int не переполняется в начало журнала
	assert.Empty(t, tr.Read(math.MaxInt))
	assert.Len(t, tr.Read(math.MinInt), 3)
	assert.Empty(t, New().Read(-1))
}

func TestRestoreReindexes(t *testing.T) {
	stored := []domain.Utterance{
		utterance(domain.RoleClient, "a"),
		utterance(domain.RoleAgent, "b"),
	}
	stored[0].Index, stored[1].Index = 7, 9

	tr := Restore(stored)
	require.Equal(t, 2, tr.Len())

	c := tr.NewCursor(0)
	batch := c.Next()
	require.Len(t, batch, 1)
	assert.Equal(t, "b", batch[0].Text)
	assert.Equal(t, 1, c.Last())

	c = tr.NewCursor(math.MaxInt)
	assert.Empty(t, c.Next())
	assert.Equal(t, math.MaxInt, c.Last())
}

func TestReadReturnsCopy(t *testing.T) {
	tr := New()
	tr.Append(utterance(domain.RoleCoach, "original"))

	got := tr.Read(-1)
	got[0].Text = "changed"

	assert.Equal(t, "original", tr.Snapshot()[0].Text)
}

func TestCursorResume(t *testing.T) {
	tr := New()
	tr.Append(utterance(domain.RoleClient, "a"))
	tr.Append(utterance(domain.RoleClient, "b"))

	c := tr.NewCursor(-1)
	require.Len(t, c.Next(), 2)
	assert.Equal(t, 1, c.Last())
	assert.Empty(t, c.Next())

	tr.Append(utterance(domain.RoleAgent, "c"))

	// переподключение с последним увиденным индексом
	resumed := tr.NewCursor(c.Last())
	batch := resumed.Next()
	require.Len(t, batch, 1)
	assert.Equal(t, "c", batch[0].Text)
}

func TestCursorGapFreeUnderConcurrentAppend(t *testing.T) {
	tr := New()
	const total = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			tr.Append(utterance(domain.RoleClient, "x"))
		}
	}()

	c := tr.NewCursor(-1)
	expected := 0

	for expected < total {
		for _, u := range c.Next() {
			require.Equal(t, expected, u.Index)
			expected++
		}
	}

	wg.Wait()
	assert.Empty(t, c.Next())
}
