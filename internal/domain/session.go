package domain

import "time"

type SessionPhase string

const (
	SessionActive SessionPhase = "active"
	SessionPaused SessionPhase = "paused"
)

type AgentPhase string

const (
	AgentListening AgentPhase = "listening"
	AgentThinking  AgentPhase = "thinking"
	AgentSpeaking  AgentPhase = "speaking"
	AgentPaused    AgentPhase = "paused"
)

// Session - снимок состояния сессии, владелец состояния - цикл сессии
type Session struct {
	ID         string       `json:"id"`
	Phase      SessionPhase `json:"phase"`
	AgentPhase AgentPhase   `json:"agentPhase"`
	CreatedAt  time.Time    `json:"createdAt"`
	PausedAt   *time.Time   `json:"pausedAt,omitempty"`
	ResumedAt  *time.Time   `json:"resumedAt,omitempty"`
}
