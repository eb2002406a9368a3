package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/CoachSpeak/internal/application/config"
	"github.com/qrave1/CoachSpeak/internal/application/constant"
	"github.com/qrave1/CoachSpeak/internal/domain"
	"github.com/qrave1/CoachSpeak/internal/domain/events"
	"github.com/qrave1/CoachSpeak/internal/infra/adapters/memory"
	"github.com/qrave1/CoachSpeak/internal/infra/appctx"
	"github.com/qrave1/CoachSpeak/internal/usecase"
)

// SessionWSHandler - AI канал сессии: аудио участников внутрь, события агента наружу
type SessionWSHandler struct {
	upgrader *websocket.Upgrader

	// conns - отдельный реестр, ключ sessionID/userID
	conns memory.WebsocketConnectionRepository

	sessionUsecase   usecase.SessionUsecase
	signalingUsecase usecase.SignalingUsecase
}

func NewSessionWSHandler(
	cfg *config.Config,
	sessionUsecase usecase.SessionUsecase,
	signalingUsecase usecase.SignalingUsecase,
) *SessionWSHandler {
	return &SessionWSHandler{
		upgrader:         newUpgrader(cfg),
		conns:            memory.NewWSConnectionRepository(),
		sessionUsecase:   sessionUsecase,
		signalingUsecase: signalingUsecase,
	}
}

type sessionConn struct {
	key       string
	sessionID string
	identity  appctx.Identity
	ws        *websocket.Conn

	sub *usecase.Subscription
}

func (h *SessionWSHandler) Handle(c echo.Context) error {
	id, ok := appctx.IdentityFrom(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing identity"})
	}

	sessionID := c.Param("sessionId")

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("WebSocket upgrade error", slog.Any(constant.Error, err))
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	conn := &sessionConn{
		key:       sessionID + "/" + id.UserID.String(),
		sessionID: sessionID,
		identity:  id,
		ws:        ws,
	}

	h.conns.Add(conn.key, ws)
	defer h.conns.Remove(conn.key, ws)

	defer func() {
		if conn.sub != nil {
			conn.sub.Close()
		}
	}()

	if err = keepAlive(ctx, ws, func() error { return h.conns.Ping(conn.key) }); err != nil {
		return err
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("session socket read error", slog.Any(constant.Error, err), slog.String(constant.SessionID, sessionID))
			}

			return nil
		}

		msg, err := events.DecodeSession(data)
		if err != nil {
			h.reject(conn, err)
			continue
		}

		if err = h.handleMessage(ctx, conn, msg); err != nil {
			h.reject(conn, err)
		}
	}
}

func (h *SessionWSHandler) handleMessage(ctx context.Context, conn *sessionConn, msg events.SessionMessage) error {
	switch m := msg.(type) {
	case events.InitSession:
		return h.initSession(ctx, conn)

	case events.AudioData:
		// говорящий определяется проверенной ролью, а не типом сообщения
		if m.SpeakerRole != conn.identity.Role {
			return fmt.Errorf("%s sent by %s: %w", m.SessionType(), conn.identity.Role, domain.ErrForbidden)
		}

		return h.sessionUsecase.SubmitAudio(ctx, conn.sessionID, m.Chunk(time.Now()))

	case events.Pause:
		if conn.identity.Role != domain.RoleCoach {
			return fmt.Errorf("pause by %s: %w", conn.identity.Role, domain.ErrForbidden)
		}

		_, err := h.sessionUsecase.Pause(ctx, conn.sessionID)
		return err

	case events.Resume:
		if conn.identity.Role != domain.RoleCoach {
			return fmt.Errorf("resume by %s: %w", conn.identity.Role, domain.ErrForbidden)
		}

		_, err := h.sessionUsecase.Resume(ctx, conn.sessionID)
		return err
	}

	return &events.DecodeError{Code: events.CodeUnsupported, Message: "unknown message type", Param: msg.SessionType()}
}

func (h *SessionWSHandler) initSession(ctx context.Context, conn *sessionConn) error {
	session, err := h.sessionUsecase.Create(ctx, conn.sessionID)
	if err != nil {
		return err
	}

	if err = h.signalingUsecase.AttachAgent(ctx, conn.sessionID); err != nil {
		slog.Warn("attach agent", slog.Any(constant.Error, err), slog.String(constant.SessionID, conn.sessionID))
	}

	if conn.sub == nil {
		conn.sub, err = h.sessionUsecase.Subscribe(conn.sessionID)
		if err != nil {
			return err
		}

		go h.forward(conn, conn.sub)
	}

	return h.conns.Write(conn.key, events.SessionEvent{
		Type:      events.TypeSessionReady,
		SessionID: session.ID,
		Timestamp: time.Now(),
		Phase:     session.AgentPhase,
		Session:   &session,
	})
}

// forward пишет события сессии в сокет. Закрытая подписка (отставание или
// уничтожение сессии) закрывает соединение.
func (h *SessionWSHandler) forward(conn *sessionConn, sub *usecase.Subscription) {
	for ev := range sub.Events {
		if err := h.conns.Write(conn.key, ev); err != nil {
			slog.Debug("forward session event", slog.Any(constant.Error, err), slog.String(constant.SessionID, conn.sessionID))
			break
		}
	}

	_ = conn.ws.Close()
}

func (h *SessionWSHandler) reject(conn *sessionConn, err error) {
	code, message := domain.ErrorCode(err), err.Error()

	var decodeErr *events.DecodeError
	if errors.As(err, &decodeErr) {
		code = decodeErr.Code
	}

	if code == "internal" {
		slog.Error("handle session message", slog.Any(constant.Error, err), slog.String(constant.SessionID, conn.sessionID))
		message = "internal error"
	}

	ev := events.SessionEvent{
		Type:      events.TypeError,
		SessionID: conn.sessionID,
		Timestamp: time.Now(),
		Code:      code,
		Message:   message,
	}

	if err := h.conns.Write(conn.key, ev); err != nil {
		slog.Warn("write error event", slog.Any(constant.Error, err), slog.String(constant.SessionID, conn.sessionID))
	}
}
