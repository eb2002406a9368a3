package handlers

import (
	"context"
	"errors"
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

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

func newUpgrader(cfg *config.Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.Debug {
				return true
			}

			return r.Header.Get("Origin") == cfg.Domain
		},
	}
}

// keepAlive держит read deadline и пингует соединение, пока ctx жив
func keepAlive(ctx context.Context, ws *websocket.Conn, ping func() error) error {
	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := ping(); err != nil {
					slog.Debug("ping failed", slog.Any(constant.Error, err))
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// WebSocketHandler - сигнальный канал комнаты
type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	wsRepo           memory.WebsocketConnectionRepository
	signalingUsecase usecase.SignalingUsecase
}

func NewWebSocketHandler(
	cfg *config.Config,
	wsRepo memory.WebsocketConnectionRepository,
	signalingUsecase usecase.SignalingUsecase,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader:         newUpgrader(cfg),
		wsRepo:           wsRepo,
		signalingUsecase: signalingUsecase,
	}
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	id, ok := appctx.IdentityFrom(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing identity"})
	}

	roomID := c.Param("roomId")
	participantID := id.UserID.String()

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("WebSocket upgrade error", slog.Any(constant.Error, err))
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	h.wsRepo.Add(participantID, ws)
	defer func() {
		// переподключение могло заменить соединение, тогда участник остаётся в комнате
		if !h.wsRepo.Remove(participantID, ws) {
			return
		}

		room, ok := h.signalingUsecase.RoomOf(participantID)
		if !ok {
			return
		}

		if err := h.signalingUsecase.HandleLeave(context.WithoutCancel(ctx), room, participantID); err != nil {
			slog.Error("leave on disconnect", slog.Any(constant.Error, err), slog.String(constant.ParticipantID, participantID))
		}
	}()

	if err = keepAlive(ctx, ws, func() error { return h.wsRepo.Ping(participantID) }); err != nil {
		return err
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("webSocket read error", slog.Any(constant.Error, err), slog.String(constant.ParticipantID, participantID))
			}

			return nil
		}

		msg, err := events.DecodeSignaling(data)
		if err != nil {
			h.reject(participantID, roomID, err)
			continue
		}

		if err = h.handleMessage(ctx, id, roomID, msg); err != nil {
			h.reject(participantID, roomID, err)
		}
	}
}

func (h *WebSocketHandler) handleMessage(
	ctx context.Context,
	id appctx.Identity,
	roomID string,
	msg events.SignalingMessage,
) error {
	participantID := id.UserID.String()

	switch m := msg.(type) {
	case events.Join:
		if m.RoomID != "" && m.RoomID != roomID {
			return &events.DecodeError{Code: events.CodeBadRequest, Message: "roomId does not match the channel", Param: "roomId"}
		}

		name := m.DisplayName
		if name == "" {
			name = id.DisplayName
		}

		return h.signalingUsecase.HandleJoin(ctx, roomID, domain.Participant{
			ID:              participantID,
			DisplayName:     name,
			Role:            id.Role,
			ParticipantType: domain.ParticipantHuman,
			ConnectedAt:     time.Now(),
		})

	case events.Leave:
		return h.signalingUsecase.HandleLeave(ctx, roomID, participantID)

	case events.Negotiation:
		if m.RoomID == "" {
			m.RoomID = roomID
		}
		if m.RoomID != roomID {
			return &events.DecodeError{Code: events.CodeBadRequest, Message: "roomId does not match the channel", Param: "roomId"}
		}

		return h.signalingUsecase.HandleNegotiation(ctx, participantID, m)
	}

	return &events.DecodeError{Code: events.CodeUnsupported, Message: "unknown message type", Param: msg.SignalingType()}
}

// reject отправляет ошибку только отправителю, остальные участники её не видят
func (h *WebSocketHandler) reject(participantID, roomID string, err error) {
	code, message := domain.ErrorCode(err), err.Error()

	var decodeErr *events.DecodeError
	if errors.As(err, &decodeErr) {
		code = decodeErr.Code
	}

	if code == "internal" {
		slog.Error("handle signaling message", slog.Any(constant.Error, err), slog.String(constant.ParticipantID, participantID))
		message = "internal error"
	}

	if err := h.wsRepo.Write(participantID, events.NewErrorEvent(roomID, code, message)); err != nil {
		slog.Warn("write error event", slog.Any(constant.Error, err), slog.String(constant.ParticipantID, participantID))
	}
}
