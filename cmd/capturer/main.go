package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/auction-scribe/internal/adapter/repository"
	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/cache"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/database"
	sig "github.com/johnquangdev/auction-scribe/internal/infrastructure/signal"
	"github.com/johnquangdev/auction-scribe/internal/usecase/capture"
	"github.com/johnquangdev/auction-scribe/pkg/config"
)

func main() {
	sessionFlag := flag.String("session", "", "session id to capture for (required)")
	flag.Parse()

	sessionID, err := uuid.Parse(*sessionFlag)
	if err != nil {
		log.Fatalf("--session must be a valid session id: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB(db)

	signals, err := newSignalSource(cfg)
	if err != nil {
		logger.Fatal("failed to initialize signal source", zap.Error(err))
	}

	sessionRepo := repository.NewSessionRepository(db)
	segmentRepo := repository.NewSegmentRepository(db)
	eventRepo := repository.NewEventLogRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGTERM from the orchestrator means stop capturing now
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", s.String()))
		cancel()
	}()

	session, err := sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		logger.Fatal("failed to load session", zap.Error(err))
	}
	if session == nil {
		logger.Fatal("session not found", zap.String("session_id", sessionID.String()))
	}
	if session.SessionDir == "" {
		logger.Fatal("session has no workspace directory; run the orchestrator first")
	}

	effective, err := effectiveConfig(ctx, session, settingsRepo)
	if err != nil {
		logger.Fatal("failed to resolve session configuration", zap.Error(err))
	}

	capturer := capture.NewCapturer(
		capture.Options{
			SessionID:         sessionID,
			StreamURL:         session.StreamURL,
			AudioDir:          filepath.Join(session.SessionDir, "audio"),
			Config:            effective,
			ConnectCheck:      time.Duration(cfg.Capture.ConnectCheckSeconds) * time.Second,
			MaxConnectRetries: cfg.Capture.MaxConnectRetries,
			TerminateGrace:    time.Duration(cfg.Capture.TerminateGraceSec) * time.Second,
		},
		capture.NewFFmpegRunner(cfg.Capture.FFmpegBin),
		segmentRepo,
		sessionRepo,
		eventRepo,
		signals,
		logger,
	)

	if err := capturer.Run(ctx); err != nil {
		logger.Error("capture ended with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("capture finished")
}

// effectiveConfig prefers the snapshot written at orchestration start so a
// settings change mid-session cannot shift the segment length underneath us.
func effectiveConfig(ctx context.Context, session *entities.Session, settingsRepo *repository.SettingsRepository) (entities.EffectiveConfig, error) {
	var effective entities.EffectiveConfig
	if len(session.ConfigSnapshot) > 0 {
		if err := json.Unmarshal(session.ConfigSnapshot, &effective); err == nil {
			return effective, nil
		}
	}
	settings, err := settingsRepo.Get(ctx)
	if err != nil {
		return effective, err
	}
	return entities.MergeConfig(session, settings), nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Server.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newSignalSource(cfg *config.Config) (sig.Source, error) {
	if cfg.Signal.Backend == "redis" {
		client, err := cache.NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		return sig.NewRedisSource(client), nil
	}
	return sig.NewFileSource(cfg.Signal.Dir)
}
