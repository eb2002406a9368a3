package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/CoachSpeak/internal/application/metric"
)

// PrometheusMiddleware собирает метрики HTTP запросов
func PrometheusMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if status == 0 {
				status = 200
			}

			// ошибка без выставленного статуса - 500
			if err != nil && status < 400 {
				status = 500
			}

			// c.Path() - шаблон маршрута, без id в лейблах
			metric.RecordHTTPMetrics(c.Request().Method, c.Path(), status, time.Since(start))

			return err
		}
	}
}
