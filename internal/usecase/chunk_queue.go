package usecase

import (
	"github.com/qrave1/CoachSpeak/internal/domain"
)

// chunkQueue - ограниченная очередь аудио одного говорящего.
// При переполнении вытесняется самый старый чанк.
type chunkQueue struct {
	ch chan domain.AudioChunk
}

func newChunkQueue(depth int) *chunkQueue {
	return &chunkQueue{ch: make(chan domain.AudioChunk, depth)}
}

// push возвращает количество вытесненных чанков
func (q *chunkQueue) push(chunk domain.AudioChunk) int {
	dropped := 0

	for {
		select {
		case q.ch <- chunk:
			return dropped
		default:
		}

		select {
		case <-q.ch:
			dropped++
		default:
		}
	}
}

func (q *chunkQueue) pop() <-chan domain.AudioChunk {
	return q.ch
}
