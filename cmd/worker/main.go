package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/auction-scribe/internal/adapter/repository"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/cache"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/database"
	sig "github.com/johnquangdev/auction-scribe/internal/infrastructure/signal"
	"github.com/johnquangdev/auction-scribe/internal/usecase/transcribe"
	"github.com/johnquangdev/auction-scribe/pkg/config"
)

func main() {
	sessionFlag := flag.String("session", "", "session id to drain; empty drains the global pool")
	modelFlag := flag.String("model", "", "whisper model override")
	limitFlag := flag.Int("limit", 0, "max segments to transcribe this run (0 = unbounded)")
	resetFlag := flag.Bool("reset-failed", false, "reset error/skipped segments back to pending first")
	oneShotFlag := flag.Bool("one-shot", false, "exit as soon as the backlog is empty instead of long-polling")
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

	opts := transcribe.WorkerOptions{
		Limit:        *limitFlag,
		ResetFailed:  *resetFlag,
		PollInterval: time.Duration(cfg.Transcribe.PollSeconds) * time.Second,
		MaxIdlePolls: cfg.Transcribe.MaxIdlePolls,
		PathMapper: transcribe.PathMapper{
			RemotePrefix: cfg.Transcribe.RemotePathPrefix,
			LocalPrefix:  cfg.Transcribe.LocalPathPrefix,
		},
	}
	if *oneShotFlag {
		opts.MaxIdlePolls = 1
	}
	if *sessionFlag != "" {
		id, err := uuid.Parse(*sessionFlag)
		if err != nil {
			logger.Fatal("invalid --session value", zap.Error(err))
		}
		opts.SessionID = &id
	}

	model := *modelFlag
	if model == "" {
		settings, err := settingsRepo.Get(ctx)
		if err != nil {
			logger.Fatal("failed to load settings", zap.Error(err))
		}
		model = settings.WhisperModel
	}

	engine, err := newEngine(cfg, model, logger)
	if err != nil {
		logger.Fatal("failed to initialize transcription engine", zap.Error(err))
	}

	worker := transcribe.NewWorker(opts, engine, segmentRepo, sessionRepo, eventRepo, signals, logger)

	// SIGTERM finishes the in-flight segment, a second one aborts
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("stop requested, finishing current segment")
		worker.RequestStop()
		<-sigCh
		logger.Warn("second signal, aborting")
		cancel()
	}()

	if err := worker.Run(ctx); err != nil {
		logger.Error("worker ended with error", zap.Error(err))
		os.Exit(1)
	}
	status := worker.Snapshot()
	logger.Info("worker finished",
		zap.Int("completed", status.Completed),
		zap.Int("errors", status.Errors),
	)
}

func newEngine(cfg *config.Config, model string, logger *zap.Logger) (transcribe.Engine, error) {
	if cfg.Transcribe.Engine == "assemblyai" {
		return transcribe.NewAssemblyAIEngine(cfg.Transcribe.AssemblyAIKey, cfg.Transcribe.Language, logger), nil
	}
	return transcribe.NewWhisperEngine(cfg.Transcribe.WhisperBin, model, cfg.Transcribe.Language, logger), nil
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
