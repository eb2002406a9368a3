package domain

import "time"

type Role string

const (
	RoleClient Role = "client"
	RoleCoach  Role = "coach"
	RoleAgent  Role = "agent"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleCoach, RoleAgent:
		return true
	default:
		return false
	}
}

// Human - роль принадлежит человеку
func (r Role) Human() bool {
	return r == RoleClient || r == RoleCoach
}

type ParticipantType string

const (
	ParticipantHuman ParticipantType = "human"
	ParticipantAI    ParticipantType = "ai"
)

type Participant struct {
	ID              string          `json:"id"`
	DisplayName     string          `json:"displayName"`
	Role            Role            `json:"role"`
	ParticipantType ParticipantType `json:"participantType"`
	ConnectedAt     time.Time       `json:"connectedAt"`
}

// Peer - то, что видят остальные участники комнаты
type Peer struct {
	ID              string          `json:"id"`
	DisplayName     string          `json:"displayName"`
	Role            Role            `json:"role"`
	ParticipantType ParticipantType `json:"participantType"`
}

func (p Participant) Peer() Peer {
	return Peer{
		ID:              p.ID,
		DisplayName:     p.DisplayName,
		Role:            p.Role,
		ParticipantType: p.ParticipantType,
	}
}

// AgentParticipantID - id серверного агента в комнате
func AgentParticipantID(roomID string) string {
	return "agent-" + roomID
}

func NewAgentParticipant(roomID string, now time.Time) Participant {
	return Participant{
		ID:              AgentParticipantID(roomID),
		DisplayName:     "Assistant",
		Role:            RoleAgent,
		ParticipantType: ParticipantAI,
		ConnectedAt:     now,
	}
}
