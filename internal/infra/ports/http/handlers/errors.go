package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/CoachSpeak/internal/application/constant"
	"github.com/qrave1/CoachSpeak/internal/domain"
	"github.com/qrave1/CoachSpeak/internal/infra/ports/http/dto"
)

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotPaused), errors.Is(err, domain.ErrRoomFull), errors.Is(err, domain.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAgentTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrPipelineUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, err error) error {
	status := statusOf(err)
	code := domain.ErrorCode(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("handle request", slog.Any(constant.Error, err), slog.String("path", c.Path()))
		message = "internal error"
	}

	return c.JSON(status, dto.ErrorResponse{Error: message, Code: code})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: message, Code: "bad_request"})
}
