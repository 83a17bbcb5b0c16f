package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/johnquangdev/auction-scribe/internal/adapter/handler"
	"github.com/johnquangdev/auction-scribe/internal/adapter/repository"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/cache"
	"github.com/johnquangdev/auction-scribe/internal/infrastructure/database"
	sig "github.com/johnquangdev/auction-scribe/internal/infrastructure/signal"
	"github.com/johnquangdev/auction-scribe/internal/usecase/transcribe"
	"github.com/johnquangdev/auction-scribe/pkg/config"
	pkgvalidator "github.com/johnquangdev/auction-scribe/pkg/validator"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Echo instance
	e := echo.New()
	e.Validator = pkgvalidator.New()
	e.HideBanner = true

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} | ${status} | ${method} ${uri} | ${latency_human}\n",
	}))
	e.Use(middleware.Recover())

	// Initialize Database
	log.Println("📦 Connecting to database...")
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	// Run AutoMigrate only when explicitly enabled in config.
	// Production deployments should manage schema via sql-migrate.
	if cfg.Database.AutoMigrate {
		if cfg.Server.Environment == "production" {
			log.Fatalf("AutoMigrate is enabled in production. Disable SCRIBE_DB_AUTO_MIGRATE or manage schema with sql-migrate.")
		}
		log.Println("🔄 Running GORM AutoMigrate (development only) ...")
		if err := database.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to run AutoMigrate: %v", err)
		}
	}

	signals, err := newSignalSource(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize signal source: %v", err)
	}

	// Initialize repositories
	sessionRepo := repository.NewSessionRepository(db)
	segmentRepo := repository.NewSegmentRepository(db)
	eventRepo := repository.NewEventLogRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// The factory resolves the model per run: request override first, then the
	// global settings row.
	factory := func(opts transcribe.WorkerOptions, model string) (*transcribe.Worker, error) {
		if opts.PollInterval == 0 {
			opts.PollInterval = time.Duration(cfg.Transcribe.PollSeconds) * time.Second
		}
		if opts.MaxIdlePolls == 0 {
			opts.MaxIdlePolls = cfg.Transcribe.MaxIdlePolls
		}
		opts.PathMapper = transcribe.PathMapper{
			RemotePrefix: cfg.Transcribe.RemotePathPrefix,
			LocalPrefix:  cfg.Transcribe.LocalPathPrefix,
		}
		if model == "" {
			settings, err := settingsRepo.Get(context.Background())
			if err != nil {
				return nil, err
			}
			model = settings.WhisperModel
		}
		var engine transcribe.Engine
		if cfg.Transcribe.Engine == "assemblyai" {
			engine = transcribe.NewAssemblyAIEngine(cfg.Transcribe.AssemblyAIKey, cfg.Transcribe.Language, logger)
		} else {
			engine = transcribe.NewWhisperEngine(cfg.Transcribe.WhisperBin, model, cfg.Transcribe.Language, logger)
		}
		return transcribe.NewWorker(opts, engine, segmentRepo, sessionRepo, eventRepo, signals, logger), nil
	}

	workerHandler := handler.NewWorkerHandler(factory, logger)
	router := handler.NewRouter(cfg, workerHandler)
	router.Setup(e)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		log.Printf("🚀 Starting worker control surface on %s", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down...")

	workerHandler.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("✅ Server stopped")
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
