package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/do/v2"

	"github.com/qrave1/CoachSpeak/internal/application/config"
	"github.com/qrave1/CoachSpeak/internal/infra/adapters/memory"
	"github.com/qrave1/CoachSpeak/internal/infra/adapters/postgres"
	"github.com/qrave1/CoachSpeak/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/CoachSpeak/internal/infra/adapters/speech"
	"github.com/qrave1/CoachSpeak/internal/infra/ports/http/handlers"
	"github.com/qrave1/CoachSpeak/internal/usecase"
)

// speechServices - выбранный бэкенд речевых сервисов
type speechServices struct {
	transcriber usecase.Transcriber
	reasoner    usecase.Reasoner
	synthesizer usecase.Synthesizer

	close func() error
}

func setupDI(ctx context.Context, cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)

	do.Provide(injector, func(i do.Injector) (*sqlx.DB, error) {
		return postgres.NewPostgres(ctx, cfg.Postgres.DSN())
	})
	do.Provide(injector, func(i do.Injector) (repository.TranscriptRepository, error) {
		return repository.NewTranscriptRepo(do.MustInvoke[*sqlx.DB](i)), nil
	})

	do.Provide(injector, func(i do.Injector) (memory.RoomRegistry, error) {
		return memory.NewRoomRegistry(cfg.Room.Capacity), nil
	})
	do.Provide(injector, func(i do.Injector) (memory.WebsocketConnectionRepository, error) {
		return memory.NewWSConnectionRepository(), nil
	})
	do.Provide(injector, func(i do.Injector) (memory.PeerConnectionRepository, error) {
		return memory.NewPeerConnectionRepository(), nil
	})

	do.Provide(injector, func(i do.Injector) (*speechServices, error) {
		return newSpeechServices(ctx, cfg)
	})
	do.Provide(injector, func(i do.Injector) (*usecase.Pipeline, error) {
		s := do.MustInvoke[*speechServices](i)
		return usecase.NewPipeline(s.transcriber, s.reasoner, s.synthesizer, cfg.Session.AgentTimeout), nil
	})

	do.Provide(injector, func(i do.Injector) (usecase.SessionUsecase, error) {
		return usecase.NewSessionUsecase(
			cfg.Session,
			do.MustInvoke[*usecase.Pipeline](i),
			do.MustInvoke[repository.TranscriptRepository](i),
		), nil
	})
	do.Provide(injector, func(i do.Injector) (usecase.AgentPeerUsecase, error) {
		return usecase.NewAgentPeerUsecase(
			cfg.ICEServers(),
			do.MustInvoke[memory.PeerConnectionRepository](i),
			do.MustInvoke[usecase.SessionUsecase](i),
		), nil
	})
	do.Provide(injector, func(i do.Injector) (usecase.SignalingUsecase, error) {
		return usecase.NewSignalingUsecase(
			do.MustInvoke[memory.RoomRegistry](i),
			do.MustInvoke[memory.WebsocketConnectionRepository](i),
			do.MustInvoke[usecase.SessionUsecase](i),
			do.MustInvoke[usecase.AgentPeerUsecase](i),
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*handlers.SessionHandler, error) {
		return handlers.NewSessionHandler(
			do.MustInvoke[usecase.SessionUsecase](i),
			do.MustInvoke[usecase.SignalingUsecase](i),
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*handlers.RoomHandler, error) {
		return handlers.NewRoomHandler(do.MustInvoke[usecase.SignalingUsecase](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*handlers.PipelineHandler, error) {
		return handlers.NewPipelineHandler(do.MustInvoke[*usecase.Pipeline](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*handlers.IceHandler, error) {
		return handlers.NewIceHandler(cfg), nil
	})
	do.Provide(injector, func(i do.Injector) (*handlers.WebSocketHandler, error) {
		return handlers.NewWebSocketHandler(
			cfg,
			do.MustInvoke[memory.WebsocketConnectionRepository](i),
			do.MustInvoke[usecase.SignalingUsecase](i),
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*handlers.SessionWSHandler, error) {
		return handlers.NewSessionWSHandler(
			cfg,
			do.MustInvoke[usecase.SessionUsecase](i),
			do.MustInvoke[usecase.SignalingUsecase](i),
		), nil
	})

	return injector
}

func newSpeechServices(ctx context.Context, cfg *config.Config) (*speechServices, error) {
	switch cfg.Speech.Backend {
	case config.SpeechBackendGoogle:
		stt, err := speech.NewCloudSpeechTranscriber(ctx, speech.CloudSpeechConfig{
			ProjectID:       cfg.Speech.ProjectID,
			CredentialsJSON: cfg.Speech.CredentialsJSON,
			Language:        cfg.Speech.Language,
			Location:        cfg.Speech.Location,
			Model:           cfg.Speech.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("cloud speech: %w", err)
		}

		agent, err := speech.NewGeminiAgent(ctx, speech.GeminiConfig{
			APIKey:   cfg.Speech.GeminiAPIKey,
			Model:    cfg.Speech.GeminiModel,
			TTSModel: cfg.Speech.GeminiTTSModel,
			Voice:    cfg.Speech.GeminiVoice,
		})
		if err != nil {
			_ = stt.Close()
			return nil, fmt.Errorf("gemini: %w", err)
		}

		return &speechServices{
			transcriber: stt,
			reasoner:    agent,
			synthesizer: agent,
			close:       stt.Close,
		}, nil

	default:
		return &speechServices{
			transcriber: speech.NewSimulatedTranscriber(),
			reasoner:    speech.NewSimulatedReasoner(800 * time.Millisecond),
			synthesizer: speech.NewSimulatedSynthesizer(300*time.Millisecond, 15*time.Second),
			close:       func() error { return nil },
		}, nil
	}
}
