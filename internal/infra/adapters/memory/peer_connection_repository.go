package memory

import (
	"sync"

	"github.com/qrave1/CoachSpeak/internal/domain"
)

// PeerConnectionRepository - WebRTC соединения агента, по комнате и удалённому участнику
type PeerConnectionRepository interface {
	Add(peer *domain.MediaPeer)
	Get(roomID, remoteID string) (*domain.MediaPeer, bool)
	Remove(roomID, remoteID string) (*domain.MediaPeer, bool)
	RemoveRoom(roomID string) []*domain.MediaPeer
}

type peerConnectionRepository struct {
	// peers хранит map[room_id]map[remote_id]*MediaPeer
	peers map[string]map[string]*domain.MediaPeer
	mu    sync.RWMutex
}

func NewPeerConnectionRepository() PeerConnectionRepository {
	return &peerConnectionRepository{
		peers: make(map[string]map[string]*domain.MediaPeer),
	}
}

func (r *peerConnectionRepository) Add(peer *domain.MediaPeer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.peers[peer.RoomID]
	if !ok {
		room = make(map[string]*domain.MediaPeer, 2)
		r.peers[peer.RoomID] = room
	}

	room[peer.RemoteID] = peer
}

func (r *peerConnectionRepository) Get(roomID, remoteID string) (*domain.MediaPeer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, ok := r.peers[roomID][remoteID]
	return peer, ok
}

func (r *peerConnectionRepository) Remove(roomID, remoteID string) (*domain.MediaPeer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[roomID][remoteID]
	if !ok {
		return nil, false
	}

	delete(r.peers[roomID], remoteID)
	if len(r.peers[roomID]) == 0 {
		delete(r.peers, roomID)
	}

	return peer, true
}

func (r *peerConnectionRepository) RemoveRoom(roomID string) []*domain.MediaPeer {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.peers[roomID]
	delete(r.peers, roomID)

	out := make([]*domain.MediaPeer, 0, len(room))
	for _, peer := range room {
		out = append(out, peer)
	}

	return out
}
