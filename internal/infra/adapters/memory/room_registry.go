package memory

import (
	"slices"
	"sync"

	"github.com/qrave1/CoachSpeak/internal/application/metric"
	"github.com/qrave1/CoachSpeak/internal/domain"
)

// RoomRegistry - комнаты и их участники в памяти.
// Каждая комната блокируется отдельно, общий mutex держится только на время поиска.
type RoomRegistry interface {
	// Join регистрирует участника и возвращает тех, кто уже был в комнате
	Join(roomID string, participant domain.Participant) ([]domain.Participant, error)

	// Leave удаляет участника. Когда людей не осталось, вместе с ним
	// уходят AI-участники и комната удаляется.
	Leave(roomID, participantID string) (LeaveResult, bool)

	Member(roomID, participantID string) (domain.Participant, bool)
	Members(roomID string) []domain.Participant

	// RoomOf - комната, в которой сейчас находится участник
	RoomOf(participantID string) (string, bool)
}

type LeaveResult struct {
	Removed   domain.Participant
	Remaining []domain.Participant

	// Evicted - AI-участники, удалённые вместе с последним человеком
	Evicted []domain.Participant

	// Closed - комната удалена из реестра
	Closed bool
}

type room struct {
	mu           sync.Mutex
	participants []domain.Participant
	// closed - комната опустела и удалена из реестра
	closed bool
}

func (r *room) indexOf(participantID string) int {
	return slices.IndexFunc(r.participants, func(p domain.Participant) bool {
		return p.ID == participantID
	})
}

type roomRegistry struct {
	capacity int

	rooms map[string]*room
	mu    sync.RWMutex

	// membership хранит map[participant_id]room_id
	membership map[string]string
	memberMu   sync.Mutex
}

func NewRoomRegistry(capacity int) RoomRegistry {
	return &roomRegistry{
		capacity:   capacity,
		rooms:      make(map[string]*room, 10),
		membership: make(map[string]string, 10),
	}
}

func (r *roomRegistry) Join(roomID string, participant domain.Participant) ([]domain.Participant, error) {
	for {
		rm := r.getOrCreate(roomID)

		rm.mu.Lock()
		if rm.closed {
			// комнату удалили между поиском и блокировкой, берём новую
			rm.mu.Unlock()
			continue
		}

		idx := rm.indexOf(participant.ID)
		if idx < 0 && len(rm.participants) >= r.capacity {
			rm.mu.Unlock()
			return nil, domain.ErrRoomFull
		}

		peers := make([]domain.Participant, 0, len(rm.participants))
		for _, p := range rm.participants {
			if p.ID != participant.ID {
				peers = append(peers, p)
			}
		}

		if idx >= 0 {
			// переподключение: место в очереди сохраняется
			rm.participants[idx] = participant
		} else {
			rm.participants = append(rm.participants, participant)
		}

		r.memberMu.Lock()
		r.membership[participant.ID] = roomID
		r.memberMu.Unlock()

		rm.mu.Unlock()

		return peers, nil
	}
}

func (r *roomRegistry) Leave(roomID, participantID string) (LeaveResult, bool) {
	rm, ok := r.get(roomID)
	if !ok {
		return LeaveResult{}, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	idx := rm.indexOf(participantID)
	if idx < 0 {
		return LeaveResult{}, false
	}

	res := LeaveResult{Removed: rm.participants[idx]}
	rm.participants = slices.Delete(rm.participants, idx, idx+1)
	r.forget(roomID, participantID)

	if slices.ContainsFunc(rm.participants, func(p domain.Participant) bool { return p.Role.Human() }) {
		res.Remaining = slices.Clone(rm.participants)
		return res, true
	}

	// без людей комната не живёт: агент уходит в той же критической секции
	res.Evicted = rm.participants
	for _, p := range res.Evicted {
		r.forget(roomID, p.ID)
	}

	rm.participants = nil
	rm.closed = true
	res.Closed = true

	r.mu.Lock()
	if r.rooms[roomID] == rm {
		delete(r.rooms, roomID)
		metric.DecrementActiveRooms()
	}
	r.mu.Unlock()

	return res, true
}

func (r *roomRegistry) forget(roomID, participantID string) {
	r.memberMu.Lock()
	defer r.memberMu.Unlock()

	if r.membership[participantID] == roomID {
		delete(r.membership, participantID)
	}
}

func (r *roomRegistry) Member(roomID, participantID string) (domain.Participant, bool) {
	rm, ok := r.get(roomID)
	if !ok {
		return domain.Participant{}, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	idx := rm.indexOf(participantID)
	if idx < 0 {
		return domain.Participant{}, false
	}

	return rm.participants[idx], true
}

func (r *roomRegistry) Members(roomID string) []domain.Participant {
	rm, ok := r.get(roomID)
	if !ok {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	return slices.Clone(rm.participants)
}

func (r *roomRegistry) RoomOf(participantID string) (string, bool) {
	r.memberMu.Lock()
	defer r.memberMu.Unlock()

	roomID, ok := r.membership[participantID]
	return roomID, ok
}

func (r *roomRegistry) get(roomID string) (*room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	return rm, ok
}

func (r *roomRegistry) getOrCreate(roomID string) *room {
	if rm, ok := r.get(roomID); ok {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rm, ok := r.rooms[roomID]; ok {
		return rm
	}

	rm := &room{participants: make([]domain.Participant, 0, r.capacity)}
	r.rooms[roomID] = rm
	metric.IncrementActiveRooms()

	return rm
}
