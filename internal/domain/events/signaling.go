package events

import (
	"encoding/json"
	"time"

	"github.com/qrave1/CoachSpeak/internal/domain"
)

// Типы сообщений сигнального канала комнаты
const (
	TypeJoin              = "join"
	TypeLeave             = "leave"
	TypeParticipantJoined = "participant-joined"
	TypeParticipantLeft   = "participant-left"
	TypeOffer             = "offer"
	TypeAnswer            = "answer"
	TypeICECandidate      = "ice-candidate"
	TypePeerDiscovery     = "peer-discovery"
	TypeError             = "error"
)

// SignalingMessage - входящее сообщение сигнального канала.
// Закрытое множество: Join, Leave, Negotiation.
type SignalingMessage interface {
	SignalingType() string
}

type Join struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName,omitempty"`
}

type Leave struct {
	RoomID string `json:"roomId"`
}

// Negotiation - offer, answer или ice-candidate. Payload не разбирается.
type Negotiation struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId"`
	ToID    string          `json:"toId,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

func (Join) SignalingType() string          { return TypeJoin }
func (Leave) SignalingType() string         { return TypeLeave }
func (n Negotiation) SignalingType() string { return n.Type }

// Broadcast - получатель не указан
func (n Negotiation) Broadcast() bool {
	return n.ToID == ""
}

// DecodeSignaling разбирает входящее сообщение сигнального канала.
// roomId может отсутствовать: комнату задаёт сам канал.
func DecodeSignaling(data []byte) (SignalingMessage, error) {
	typ, err := envelopeType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeJoin:
		var msg Join
		if err := decodeInto(data, typ, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeLeave:
		var msg Leave
		if err := decodeInto(data, typ, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeOffer, TypeAnswer, TypeICECandidate:
		var msg Negotiation
		if err := decodeInto(data, typ, &msg); err != nil {
			return nil, err
		}
		if len(msg.Payload) == 0 {
			return nil, badRequest("payload is required", "payload")
		}
		msg.Type = typ
		return msg, nil

	case TypeParticipantJoined, TypeParticipantLeft, TypePeerDiscovery, TypeError:
		return nil, unsupported("message type is server-originated", typ)

	default:
		return nil, unsupported("unknown message type", typ)
	}
}

// Исходящие сообщения сигнального канала

type Relayed struct {
	Type            string                 `json:"type"`
	RoomID          string                 `json:"roomId"`
	FromID          string                 `json:"fromId"`
	FromRole        domain.Role            `json:"fromRole"`
	ParticipantType domain.ParticipantType `json:"participantType"`
	ToID            string                 `json:"toId,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
	Payload         json.RawMessage        `json:"payload"`
}

type ParticipantJoined struct {
	Type        string      `json:"type"`
	RoomID      string      `json:"roomId"`
	FromID      string      `json:"fromId"`
	Participant domain.Peer `json:"participant"`
	Timestamp   time.Time   `json:"timestamp"`
}

type ParticipantLeft struct {
	Type          string    `json:"type"`
	RoomID        string    `json:"roomId"`
	FromID        string    `json:"fromId"`
	ParticipantID string    `json:"participantId"`
	Timestamp     time.Time `json:"timestamp"`
}

type PeerDiscovery struct {
	Type      string        `json:"type"`
	RoomID    string        `json:"roomId"`
	Peers     []domain.Peer `json:"peers"`
	Timestamp time.Time     `json:"timestamp"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewRelayed(roomID string, from domain.Participant, n Negotiation, now time.Time) Relayed {
	return Relayed{
		Type:            n.Type,
		RoomID:          roomID,
		FromID:          from.ID,
		FromRole:        from.Role,
		ParticipantType: from.ParticipantType,
		ToID:            n.ToID,
		Timestamp:       now,
		Payload:         n.Payload,
	}
}

func NewParticipantJoined(roomID string, p domain.Participant) ParticipantJoined {
	return ParticipantJoined{
		Type:        TypeParticipantJoined,
		RoomID:      roomID,
		FromID:      p.ID,
		Participant: p.Peer(),
		Timestamp:   p.ConnectedAt,
	}
}

func NewParticipantLeft(roomID, participantID string, now time.Time) ParticipantLeft {
	return ParticipantLeft{
		Type:          TypeParticipantLeft,
		RoomID:        roomID,
		FromID:        participantID,
		ParticipantID: participantID,
		Timestamp:     now,
	}
}

func NewPeerDiscovery(roomID string, peers []domain.Participant, now time.Time) PeerDiscovery {
	list := make([]domain.Peer, 0, len(peers))
	for _, p := range peers {
		list = append(list, p.Peer())
	}

	return PeerDiscovery{
		Type:      TypePeerDiscovery,
		RoomID:    roomID,
		Peers:     list,
		Timestamp: now,
	}
}

func NewErrorEvent(roomID, code, message string) ErrorEvent {
	return ErrorEvent{
		Type:    TypeError,
		RoomID:  roomID,
		Code:    code,
		Message: message,
	}
}
