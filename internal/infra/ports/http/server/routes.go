package server

import (
	"github.com/labstack/echo/v4"

	"github.com/qrave1/CoachSpeak/internal/application/config"
	"github.com/qrave1/CoachSpeak/internal/infra/ports/http/handlers"
	"github.com/qrave1/CoachSpeak/internal/infra/ports/http/middleware"
)

func New(
	cfg *config.Config,
	sessionHandler *handlers.SessionHandler,
	roomHandler *handlers.RoomHandler,
	pipelineHandler *handlers.PipelineHandler,
	iceHandler *handlers.IceHandler,
	wsHandler *handlers.WebSocketHandler,
	sessionWSHandler *handlers.SessionWSHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	api := e.Group("/api")
	{
		v1 := api.Group("/v1")
		v1.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
		{
			v1.GET("/ice", iceHandler.IceServers)

			v1.GET("/ws/rooms/:roomId", wsHandler.Handle)
			v1.GET("/ws/sessions/:sessionId", sessionWSHandler.Handle)

			v1.GET("/rooms/:roomId/participants", roomHandler.Participants)

			v1.POST("/sessions", sessionHandler.Create)
			v1.GET("/sessions/:id", sessionHandler.Get)
			v1.POST("/sessions/:id/pause", sessionHandler.Pause)
			v1.POST("/sessions/:id/resume", sessionHandler.Resume)
			v1.DELETE("/sessions/:id", sessionHandler.Delete)
			v1.GET("/sessions/:id/transcript", sessionHandler.Transcript)

			v1.POST("/pipeline/process", pipelineHandler.Process)
		}
	}

	return e
}
