package memory

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qrave1/CoachSpeak/internal/application/metric"
)

var ErrConnectionNotFound = errors.New("websocket connection not found")

const writeWait = 10 * time.Second

// WebsocketConnectionRepository - активные сигнальные соединения по participant id
type WebsocketConnectionRepository interface {
	Add(participantID string, conn *websocket.Conn)
	// Remove удаляет соединение, только если оно всё ещё текущее для участника
	Remove(participantID string, conn *websocket.Conn) bool

	Write(participantID string, payload any) error
	Ping(participantID string) error
}

type safeWS struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *safeWS) writeJSON(payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	return s.conn.WriteJSON(payload)
}

type wsConnectionRepository struct {
	// wsConns хранит map[participant_id]*ws.conn
	wsConns map[string]*safeWS

	mu sync.RWMutex
}

func NewWSConnectionRepository() WebsocketConnectionRepository {
	return &wsConnectionRepository{
		wsConns: make(map[string]*safeWS, 10),
	}
}

func (w *wsConnectionRepository) Add(participantID string, conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.wsConns[participantID]; !exists {
		metric.IncrementWSActiveConnections()
	}

	w.wsConns[participantID] = &safeWS{conn: conn}
}

func (w *wsConnectionRepository) Remove(participantID string, conn *websocket.Conn) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	current, exists := w.wsConns[participantID]
	if !exists || current.conn != conn {
		return false
	}

	delete(w.wsConns, participantID)
	metric.DecrementWSActiveConnections()

	return true
}

func (w *wsConnectionRepository) Write(participantID string, payload any) error {
	safews, ok := w.getSafeWS(participantID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, participantID)
	}

	if err := safews.writeJSON(payload); err != nil {
		return fmt.Errorf("write to websocket: %w", err)
	}

	return nil
}

func (w *wsConnectionRepository) Ping(participantID string) error {
	safews, ok := w.getSafeWS(participantID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, participantID)
	}

	safews.mu.Lock()
	defer safews.mu.Unlock()

	return safews.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (w *wsConnectionRepository) getSafeWS(participantID string) (*safeWS, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	conn, ok := w.wsConns[participantID]
	return conn, ok
}
