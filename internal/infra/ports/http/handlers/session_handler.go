package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/CoachSpeak/internal/application/constant"
	"github.com/qrave1/CoachSpeak/internal/domain"
	"github.com/qrave1/CoachSpeak/internal/infra/appctx"
	"github.com/qrave1/CoachSpeak/internal/infra/ports/http/dto"
	"github.com/qrave1/CoachSpeak/internal/usecase"
)

type SessionHandler struct {
	sessionUsecase   usecase.SessionUsecase
	signalingUsecase usecase.SignalingUsecase
}

func NewSessionHandler(sessionUsecase usecase.SessionUsecase, signalingUsecase usecase.SignalingUsecase) *SessionHandler {
	return &SessionHandler{
		sessionUsecase:   sessionUsecase,
		signalingUsecase: signalingUsecase,
	}
}

func (h *SessionHandler) Create(c echo.Context) error {
	var req dto.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx := c.Request().Context()

	session, err := h.sessionUsecase.Create(ctx, req.SessionID)
	if err != nil {
		return respondError(c, err)
	}

	if err = h.signalingUsecase.AttachAgent(ctx, session.ID); err != nil {
		slog.Warn("attach agent", slog.Any(constant.Error, err), slog.String(constant.SessionID, session.ID))
	}

	return c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) Get(c echo.Context) error {
	session, err := h.sessionUsecase.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) Pause(c echo.Context) error {
	if err := requireCoach(c); err != nil {
		return respondError(c, err)
	}

	session, err := h.sessionUsecase.Pause(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) Resume(c echo.Context) error {
	if err := requireCoach(c); err != nil {
		return respondError(c, err)
	}

	session, err := h.sessionUsecase.Resume(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) Delete(c echo.Context) error {
	if err := requireCoach(c); err != nil {
		return respondError(c, err)
	}

	if err := h.sessionUsecase.Destroy(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// Transcript - курсор: ?since=N возвращает реплики с индексом больше N
func (h *SessionHandler) Transcript(c echo.Context) error {
	since := -1
	if raw := c.QueryParam("since"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < -1 {
			return badRequest(c, "since must be an integer >= -1")
		}
		since = v
	}

	sessionID := c.Param("id")

	utterances, last, err := h.sessionUsecase.Transcript(c.Request().Context(), sessionID, since)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, dto.NewTranscriptResponse(sessionID, utterances, last))
}

func requireCoach(c echo.Context) error {
	id, ok := appctx.IdentityFrom(c.Request().Context())
	if !ok || id.Role != domain.RoleCoach {
		return fmt.Errorf("coach role required: %w", domain.ErrForbidden)
	}

	return nil
}
