package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qrave1/CoachSpeak/internal/domain"
)

func TestChunkQueueDropsOldest(t *testing.T) {
	q := newChunkQueue(2)

	assert.Equal(t, 0, q.push(domain.AudioChunk{Data: []byte("1")}))
	assert.Equal(t, 0, q.push(domain.AudioChunk{Data: []byte("2")}))
	assert.Equal(t, 1, q.push(domain.AudioChunk{Data: []byte("3")}))

	assert.Equal(t, "2", string((<-q.pop()).Data))
	assert.Equal(t, "3", string((<-q.pop()).Data))

	select {
	case c := <-q.pop():
		t.Fatalf("unexpected chunk %q", c.Data)
	default:
	}
}
