package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/CoachSpeak/internal/domain"
	"github.com/qrave1/CoachSpeak/internal/infra/ports/http/dto"
	"github.com/qrave1/CoachSpeak/internal/usecase"
)

// PipelineHandler прогоняет один чанк через pipeline без сессии.
// Нужен для проверки речевых бэкендов.
type PipelineHandler struct {
	pipeline *usecase.Pipeline
}

func NewPipelineHandler(pipeline *usecase.Pipeline) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline}
}

func (h *PipelineHandler) Process(c echo.Context) error {
	var req dto.ProcessRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if len(req.Audio) == 0 {
		return badRequest(c, "audio is required")
	}

	if !req.Role.Human() {
		return badRequest(c, "role must be client or coach")
	}

	encoding := req.Encoding
	if encoding == "" {
		encoding = domain.EncodingLinear16
	}

	res, err := h.pipeline.Process(c.Request().Context(), req.SessionID, req.Role, domain.AudioChunk{
		Data:          req.Audio,
		Encoding:      encoding,
		EndOfTurnHint: req.EndOfTurn,
		ReceivedAt:    time.Now(),
	})
	if err != nil {
		return respondError(c, err)
	}

	resp := dto.ProcessResponse{
		Transcript: res.Transcript,
		Confidence: res.Confidence,
		EndOfTurn:  res.EndOfTurn,
	}

	if res.Reply != nil {
		resp.Reply = &dto.ReplyResponse{
			Text:        res.Reply.Text,
			Audio:       res.Reply.Speech.Audio,
			AudioFormat: res.Reply.Speech.Format,
			DurationMs:  res.Reply.Speech.Duration.Milliseconds(),
		}
	}

	if res.ReplyError != nil {
		resp.ReplyError = domain.ErrorCode(res.ReplyError)
	}

	return c.JSON(http.StatusOK, resp)
}
