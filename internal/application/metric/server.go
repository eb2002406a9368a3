package metric

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qrave1/CoachSpeak/internal/application/constant"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck - проверка внешней зависимости, например ping базы
type HealthCheck func(ctx context.Context) error

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// NewServer создает сервер метрик. /health отвечает 503, если упала хоть одна проверка.
func NewServer(checks map[string]HealthCheck) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK

		for name, check := range checks {
			if err := check(ctx); err != nil {
				slog.Warn("health check failed", slog.String("check", name), slog.Any(constant.Error, err))

				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}

			resp.Checks[name] = "ok"
		}

		return c.JSON(status, resp)
	})

	return e
}
