package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/auction-scribe/internal/adapter/repository"
	"github.com/johnquangdev/auction-scribe/internal/domain/entities"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/cache"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/database"
	sig "github.com/johnquangdev/auction-scribe/internal/infrastructure/signal"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/storage"
	"github.com/johnquangdev/auction-scribe/internal/usecase/orchestrate"
	"github.com/johnquangdev/auction-scribe/pkg/config"
)

func main() {
	createFlag := flag.Bool("create", false, "create a new session from --name and --url, then run it")
	nameFlag := flag.String("name", "", "auction name for --create")
	urlFlag := flag.String("url", "", "stream URL for --create")
	sessionFlag := flag.String("session", "", "existing session id to run, stop, or cancel")
	stopFlag := flag.Bool("stop", false, "request a graceful stop for --session and exit")
	cancelFlag := flag.Bool("cancel", false, "request a cancel for --session and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	signals, err := newSignalSource(cfg)
	if err != nil {
		logger.Fatal("failed to initialize signal source", zap.Error(err))
	}

	// Stop/cancel only need the signal source, not the database
	if *stopFlag || *cancelFlag {
		raiseSignal(signals, *sessionFlag, *cancelFlag, logger)
		return
	}

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB(db)

	if cfg.Database.AutoMigrate {
		if cfg.Server.Environment == "production" {
			logger.Fatal("AutoMigrate enabled in production; use sql-migrate instead")
		}
		if err := database.AutoMigrate(db); err != nil {
			logger.Fatal("failed to run AutoMigrate", zap.Error(err))
		}
	}

	sessionRepo := repository.NewSessionRepository(db)
	segmentRepo := repository.NewSegmentRepository(db)
	eventRepo := repository.NewEventLogRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", s.String()))
		cancel()
	}()

	sessionID, err := resolveSession(ctx, sessionRepo, *createFlag, *nameFlag, *urlFlag, *sessionFlag)
	if err != nil {
		logger.Fatal("failed to resolve session", zap.Error(err))
	}

	var archiver orchestrate.TranscriptArchiver
	if cfg.Storage.Enabled {
		uploader, err := storage.NewArchiveUploader(&cfg.Storage)
		if err != nil {
			logger.Fatal("failed to initialize archive storage", zap.Error(err))
		}
		archiver = uploader
	}

	launcher, err := orchestrate.NewExecLauncher()
	if err != nil {
		logger.Fatal("failed to resolve child binaries", zap.Error(err))
	}

	orchestrator := orchestrate.NewOrchestrator(
		orchestrate.Options{},
		sessionRepo,
		segmentRepo,
		settingsRepo,
		eventRepo,
		signals,
		launcher,
		archiver,
		logger,
	)

	logger.Info("orchestrating session", zap.String("session_id", sessionID.String()))
	if err := orchestrator.Run(ctx, sessionID); err != nil {
		logger.Error("orchestration failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("session finished")
}

func resolveSession(ctx context.Context, sessions *repository.SessionRepository, create bool, name, url, existing string) (uuid.UUID, error) {
	if create {
		if name == "" || url == "" {
			return uuid.Nil, fmt.Errorf("--create requires --name and --url")
		}
		session := entities.NewSession(name, url)
		if err := sessions.Create(ctx, session); err != nil {
			return uuid.Nil, fmt.Errorf("create session: %w", err)
		}
		return session.ID, nil
	}
	if existing == "" {
		return uuid.Nil, fmt.Errorf("either --create or --session is required")
	}
	return uuid.Parse(existing)
}

func raiseSignal(signals sig.Source, session string, cancel bool, logger *zap.Logger) {
	id, err := uuid.Parse(session)
	if err != nil {
		logger.Fatal("--stop/--cancel require a valid --session", zap.Error(err))
	}
	kind := sig.KindStop
	if cancel {
		kind = sig.KindCancel
	}
	if err := signals.Request(context.Background(), id, kind); err != nil {
		logger.Fatal("failed to raise signal", zap.Error(err))
	}
	logger.Info("signal raised", zap.String("kind", string(kind)), zap.String("session_id", id.String()))
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
