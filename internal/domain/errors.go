package domain

import "errors"

var (
	ErrRoomFull            = errors.New("room is full")
	ErrUnknownSender       = errors.New("sender is not a room member")
	ErrUnknownRecipient    = errors.New("recipient is not a room member")
	ErrNotPaused           = errors.New("session is not paused")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionClosed       = errors.New("session is closed")
	ErrAgentTimeout        = errors.New("agent did not respond in time")
	ErrPipelineUnavailable = errors.New("speech pipeline unavailable")
	ErrForbidden           = errors.New("role is not allowed to do this")
)

// ErrorCode возвращает код ошибки для клиента
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrUnknownSender):
		return "unknown_sender"
	case errors.Is(err, ErrUnknownRecipient):
		return "unknown_recipient"
	case errors.Is(err, ErrNotPaused):
		return "not_paused"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrAgentTimeout):
		return "agent_timeout"
	case errors.Is(err, ErrPipelineUnavailable):
		return "pipeline_unavailable"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}
