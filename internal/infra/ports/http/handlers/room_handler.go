package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/CoachSpeak/internal/infra/ports/http/dto"
	"github.com/qrave1/CoachSpeak/internal/usecase"
)

type RoomHandler struct {
	signalingUsecase usecase.SignalingUsecase
}

func NewRoomHandler(signalingUsecase usecase.SignalingUsecase) *RoomHandler {
	return &RoomHandler{signalingUsecase: signalingUsecase}
}

func (h *RoomHandler) Participants(c echo.Context) error {
	roomID := c.Param("roomId")

	return c.JSON(http.StatusOK, dto.NewParticipantsResponse(roomID, h.signalingUsecase.Participants(roomID)))
}
