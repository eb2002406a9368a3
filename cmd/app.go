package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/do/v2"

	"github.com/qrave1/CoachSpeak/internal/application/config"
	"github.com/qrave1/CoachSpeak/internal/application/constant"
	"github.com/qrave1/CoachSpeak/internal/application/metric"
	"github.com/qrave1/CoachSpeak/internal/infra/ports/http/handlers"
	"github.com/qrave1/CoachSpeak/internal/infra/ports/http/server"
	"github.com/qrave1/CoachSpeak/internal/usecase"
)

func initLogger(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: level},
			),
		),
	)
}

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	initLogger(cfg)

	slog.Info(
		"Running app",
		slog.Bool("debug", cfg.Debug),
		slog.String("speech_backend", cfg.Speech.Backend),
		slog.Int("room_capacity", cfg.Room.Capacity),
	)

	injector := setupDI(ctx, cfg)

	dbConn, err := do.Invoke[*sqlx.DB](injector)
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	speechSvc, err := do.Invoke[*speechServices](injector)
	if err != nil {
		slog.Error("init speech services", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer func() {
		if err := speechSvc.close(); err != nil {
			slog.Error("close speech services", slog.Any(constant.Error, err))
		}
	}()

	sessionUsecase := do.MustInvoke[usecase.SessionUsecase](injector)
	signalingUsecase := do.MustInvoke[usecase.SignalingUsecase](injector)

	echoSrv := server.New(
		cfg,
		do.MustInvoke[*handlers.SessionHandler](injector),
		do.MustInvoke[*handlers.RoomHandler](injector),
		do.MustInvoke[*handlers.PipelineHandler](injector),
		do.MustInvoke[*handlers.IceHandler](injector),
		do.MustInvoke[*handlers.WebSocketHandler](injector),
		do.MustInvoke[*handlers.SessionWSHandler](injector),
	)

	metricsSrv := metric.NewServer(map[string]metric.HealthCheck{
		"postgres": dbConn.PingContext,
	})

	// сигналы агента идут в комнаты, пока жив процесс
	go signalingUsecase.Run(ctx)

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	go func() {
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricPort)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down servers due to context cancel")
	case err := <-echoSrvCh:
		slog.Error("HTTP server failed", slog.Any(constant.Error, err))
		os.Exit(1)
	case err := <-metricsSrvCh:
		slog.Error("Metrics server failed", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown HTTP server", slog.Any(constant.Error, err))
	}

	// транскрипты сохраняются до закрытия базы
	if err := sessionUsecase.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to persist sessions on shutdown", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}
}
