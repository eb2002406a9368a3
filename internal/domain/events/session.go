package events

import (
	"time"

	"github.com/qrave1/CoachSpeak/internal/domain"
)

// Типы сообщений AI канала сессии
const (
	TypeInitSession        = "init-session"
	TypeSessionReady       = "session-ready"
	TypeClientAudioData    = "client-audio-data"
	TypeCoachAudioData     = "coach-audio-data"
	TypeClientSpeaking     = "client-speaking"
	TypeCoachTranscription = "coach-transcription"
	TypeAIThinking         = "ai-thinking"
	TypeAISpeaking         = "ai-speaking"
	TypeAIFinishedSpeaking = "ai-finished-speaking"
	TypePause              = "pause"
	TypeResume             = "resume"
	TypeAgentError         = "agent-error"
	TypeBacklog            = "backlog"
	TypeAgentState         = "agent-state"
)

// SessionMessage - входящее сообщение AI канала.
// Закрытое множество: InitSession, AudioData, Pause, Resume.
type SessionMessage interface {
	SessionType() string
}

type InitSession struct{}

type AudioData struct {
	SpeakerRole domain.Role          `json:"-"`
	Audio       []byte               `json:"audio"`
	Encoding    domain.AudioEncoding `json:"encoding,omitempty"`
	SampleRate  int                  `json:"sampleRate,omitempty"`
	EndOfTurn   bool                 `json:"endOfTurn,omitempty"`
}

type Pause struct{}

type Resume struct{}

func (InitSession) SessionType() string { return TypeInitSession }
func (Pause) SessionType() string       { return TypePause }
func (Resume) SessionType() string      { return TypeResume }

func (a AudioData) SessionType() string {
	if a.SpeakerRole == domain.RoleCoach {
		return TypeCoachAudioData
	}
	return TypeClientAudioData
}

func (a AudioData) Chunk(now time.Time) domain.AudioChunk {
	encoding := a.Encoding
	if encoding == "" {
		encoding = domain.EncodingLinear16
	}

	return domain.AudioChunk{
		SpeakerRole:   a.SpeakerRole,
		Data:          a.Audio,
		Encoding:      encoding,
		SampleRate:    a.SampleRate,
		EndOfTurnHint: a.EndOfTurn,
		ReceivedAt:    now,
	}
}

func DecodeSession(data []byte) (SessionMessage, error) {
	typ, err := envelopeType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeInitSession:
		return InitSession{}, nil

	case TypeClientAudioData, TypeCoachAudioData:
		var msg AudioData
		if err := decodeInto(data, typ, &msg); err != nil {
			return nil, err
		}
		if len(msg.Audio) == 0 {
			return nil, badRequest("audio is required", "audio")
		}
		switch msg.Encoding {
		case "", domain.EncodingLinear16, domain.EncodingOggOpus, domain.EncodingText:
		default:
			return nil, unsupported("unsupported audio encoding", string(msg.Encoding))
		}

		msg.SpeakerRole = domain.RoleClient
		if typ == TypeCoachAudioData {
			msg.SpeakerRole = domain.RoleCoach
		}
		return msg, nil

	case TypePause:
		return Pause{}, nil

	case TypeResume:
		return Resume{}, nil

	case TypeSessionReady, TypeClientSpeaking, TypeCoachTranscription, TypeAIThinking,
		TypeAISpeaking, TypeAIFinishedSpeaking, TypeAgentError, TypeBacklog, TypeAgentState, TypeError:
		return nil, unsupported("message type is server-originated", typ)

	default:
		return nil, unsupported("unknown message type", typ)
	}
}

// SessionEvent - исходящее событие AI канала, рассылается всем подписчикам сессии
type SessionEvent struct {
	Type        string            `json:"type"`
	SessionID   string            `json:"sessionId"`
	Timestamp   time.Time         `json:"timestamp"`
	Episode     uint64            `json:"episode,omitempty"`
	Phase       domain.AgentPhase `json:"phase,omitempty"`
	Session     *domain.Session   `json:"session,omitempty"`
	Utterance   *domain.Utterance `json:"utterance,omitempty"`
	Text        string            `json:"text,omitempty"`
	Audio       []byte            `json:"audio,omitempty"`
	AudioFormat string            `json:"audioFormat,omitempty"`
	SpeakerRole domain.Role       `json:"speakerRole,omitempty"`
	Dropped     int               `json:"dropped,omitempty"`
	Code        string            `json:"code,omitempty"`
	Message     string            `json:"message,omitempty"`
}
