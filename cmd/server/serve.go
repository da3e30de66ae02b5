package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	apihttp "github.com/chadiek/gdd-voice/api/http"
	"github.com/chadiek/gdd-voice/internal/agent"
	"github.com/chadiek/gdd-voice/internal/config"
	"github.com/chadiek/gdd-voice/internal/gdd"
	"github.com/chadiek/gdd-voice/internal/httpserver"
	"github.com/chadiek/gdd-voice/internal/infra/storage"
	"github.com/chadiek/gdd-voice/internal/llm"
	"github.com/chadiek/gdd-voice/internal/rtc"
	"github.com/chadiek/gdd-voice/internal/transcript"
	"github.com/chadiek/gdd-voice/internal/tts"
	"github.com/chadiek/gdd-voice/internal/usecase"
)

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	artifacts, err := openArtifacts(cfg, logger)
	if err != nil {
		return err
	}

	replies := llm.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.LLMModel)
	personas := replies
	if cfg.PersonaModel != cfg.LLMModel {
		personas = llm.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.PersonaModel)
	}
	orch, err := gdd.NewOrchestrator(personas, logger.Named("orchestrator"))
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	docs, err := usecase.NewDocumentService(store, orch, artifacts, logger.Named("documents"))
	if err != nil {
		return fmt.Errorf("document service: %w", err)
	}

	var pipeline agent.DocumentPipeline = docs
	if cfg.GDDPipelineURL != "" {
		logger.Info("using remote document pipeline", zap.String("url", cfg.GDDPipelineURL))
		pipeline = gdd.NewHTTPPipeline(cfg.GDDPipelineURL, cfg.AuthPassword)
	}

	turn := agent.DefaultTurnConfig()
	turn.Debounce = cfg.Debounce
	turn.DebounceExtended = cfg.DebounceExtended
	turn.CritiqueGrace = cfg.CritiqueGrace
	turn.MinAnswerWords = cfg.MinAnswerWords
	turn.DocTimeout = cfg.DocTimeout
	turn.FinishTimeout = cfg.FinishTimeout

	registry := agent.NewRegistry()
	ctrl := agent.NewController(agent.Deps{
		Generator:   replies,
		Synthesizer: tts.NewGateway(speechBackend(cfg, logger), logger.Named("tts")),
		Documents:   pipeline,
		Logger:      logger.Named("agent"),
	}, turn, registry)

	newRecognizer := func() agent.Recognizer {
		return transcript.NewAssemblyAIService(cfg.AssemblyAIKey, logger.Named("asr"))
	}
	stream := rtc.NewHandler(ctrl, newRecognizer, logger.Named("rtc"))
	documents := apihttp.NewHandlers(docs, logger.Named("api"))

	e := httpserver.New(httpserver.Routes{
		AuthPassword: cfg.AuthPassword,
		Stream:       stream.ServeWS,
		Documents:    &documents,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.HTTPAddress))
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server: %w", err)
		}
	case sig := <-sigChan:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	// hijacked websocket connections are not tracked by Shutdown
	registry.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = server.Close()
	}
	return runErr
}

func openStore(cfg config.Config, logger *zap.Logger) (gdd.Store, error) {
	if cfg.GDDDataDir == "" {
		logger.Info("document sessions kept in memory")
		return gdd.NewMemoryStore(), nil
	}
	store, err := gdd.NewBadgerStore(gdd.BadgerOptions{Dir: cfg.GDDDataDir, Logger: logger.Named("badger")})
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	logger.Info("document sessions stored on disk", zap.String("dir", cfg.GDDDataDir))
	return store, nil
}

func openArtifacts(cfg config.Config, logger *zap.Logger) (usecase.ArtifactStore, error) {
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		logger.Info("exports written locally", zap.String("dir", cfg.ExportDir))
		return storage.NewLocalStorage(cfg.ExportDir), nil
	}
	s, err := storage.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)
	if err != nil {
		return nil, fmt.Errorf("supabase storage: %w", err)
	}
	logger.Info("exports uploaded to supabase", zap.String("bucket", cfg.SupabaseBucket))
	return s, nil
}

func speechBackend(cfg config.Config, logger *zap.Logger) tts.Streamer {
	if cfg.TTSProvider == "elevenlabs" {
		logger.Info("tts backend", zap.String("provider", "elevenlabs"))
		return tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
	}
	logger.Info("tts backend", zap.String("provider", "deepgram"), zap.String("model", cfg.DeepgramModel))
	return tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramModel)
}
