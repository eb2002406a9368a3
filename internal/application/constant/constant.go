package constant

// Ключи атрибутов slog
const (
	Error         = "error"
	RoomID        = "room_id"
	SessionID     = "session_id"
	ParticipantID = "participant_id"
	UserID        = "user_id"
	Role          = "role"
	Episode       = "episode"
	MessageType   = "type"
)
