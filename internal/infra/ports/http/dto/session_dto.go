package dto

import (
	"github.com/qrave1/CoachSpeak/internal/domain"
)

type CreateSessionRequest struct {
	// SessionID - обычно id комнаты; пустой - сгенерировать
	SessionID string `json:"sessionId"`
}

type TranscriptResponse struct {
	SessionID  string             `json:"sessionId"`
	Utterances []domain.Utterance `json:"utterances"`
	// LastIndex - курсор для следующего запроса, -1 если реплик нет
	LastIndex int `json:"lastIndex"`
}

func NewTranscriptResponse(sessionID string, utterances []domain.Utterance, lastIndex int) TranscriptResponse {
	if utterances == nil {
		utterances = []domain.Utterance{}
	}

	return TranscriptResponse{
		SessionID:  sessionID,
		Utterances: utterances,
		LastIndex:  lastIndex,
	}
}

type ParticipantsResponse struct {
	RoomID       string        `json:"roomId"`
	Participants []domain.Peer `json:"participants"`
}

func NewParticipantsResponse(roomID string, participants []domain.Participant) ParticipantsResponse {
	peers := make([]domain.Peer, 0, len(participants))
	for _, p := range participants {
		peers = append(peers, p.Peer())
	}

	return ParticipantsResponse{RoomID: roomID, Participants: peers}
}

type ProcessRequest struct {
	SessionID string               `json:"sessionId"`
	Role      domain.Role          `json:"role"`
	Audio     []byte               `json:"audio"`
	Encoding  domain.AudioEncoding `json:"encoding"`
	EndOfTurn bool                 `json:"endOfTurn"`
}

type ReplyResponse struct {
	Text        string `json:"text"`
	Audio       []byte `json:"audio,omitempty"`
	AudioFormat string `json:"audioFormat,omitempty"`
	DurationMs  int64  `json:"durationMs"`
}

type ProcessResponse struct {
	Transcript string         `json:"transcript"`
	Confidence float64        `json:"confidence"`
	EndOfTurn  bool           `json:"endOfTurn"`
	Reply      *ReplyResponse `json:"reply,omitempty"`
	// ReplyError - код причины, по которой ответа нет
	ReplyError string `json:"replyError,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
