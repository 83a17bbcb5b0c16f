package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig     `envconfig:"SERVER"`
	Database   DatabaseConfig   `envconfig:"DB"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Storage    StorageConfig    `envconfig:"STORAGE"`
	Capture    CaptureConfig    `envconfig:"CAPTURE"`
	Transcribe TranscribeConfig `envconfig:"TRANSCRIBE"`
	Signal     SignalConfig     `envconfig:"SIGNAL"`
}

// ServerConfig holds the workerd control-surface configuration
type ServerConfig struct {
	Host            string `envconfig:"HOST" default:"127.0.0.1"`
	Port            string `envconfig:"PORT" default:"8891"`
	Environment     string `envconfig:"ENVIRONMENT" default:"development"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"10"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host        string `envconfig:"HOST" default:"localhost"`
	Port        string `envconfig:"PORT" default:"5432"`
	User        string `envconfig:"USER" default:"postgres"`
	Password    string `envconfig:"PASSWORD" default:"postgres"`
	Name        string `envconfig:"NAME" default:"auction_scribe"`
	SSLMode     string `envconfig:"SSLMODE" default:"disable"`
	MaxConns    int    `envconfig:"MAX_CONNS" default:"10"`
	MinConns    int    `envconfig:"MIN_CONNS" default:"2"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"false"`
}

// RedisConfig holds the optional redis signal-source configuration
type RedisConfig struct {
	Enabled  bool   `envconfig:"ENABLED" default:"false"`
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     string `envconfig:"PORT" default:"6379"`
	Password string `envconfig:"PASSWORD" default:""`
	DB       int    `envconfig:"DB" default:"0"`
}

// StorageConfig holds the optional object-storage archive configuration
type StorageConfig struct {
	Enabled         bool   `envconfig:"ENABLED" default:"false"`
	Endpoint        string `envconfig:"ENDPOINT" default:"localhost:9000"`
	AccessKeyID     string `envconfig:"ACCESS_KEY" default:"minioadmin"`
	SecretAccessKey string `envconfig:"SECRET_KEY" default:"minioadmin"`
	BucketName      string `envconfig:"BUCKET" default:"auction-scribe"`
	UseSSL          bool   `envconfig:"USE_SSL" default:"false"`
}

// CaptureConfig holds segment-capture tuning. The connection-check window and
// retry ceiling match the behavior the recorder state machine is built around.
type CaptureConfig struct {
	FFmpegBin           string `envconfig:"FFMPEG_BIN" default:"ffmpeg"`
	ConnectCheckSeconds int    `envconfig:"CONNECT_CHECK_SECONDS" default:"5"`
	MaxConnectRetries   int    `envconfig:"MAX_CONNECT_RETRIES" default:"10"`
	TerminateGraceSec   int    `envconfig:"TERMINATE_GRACE_SECONDS" default:"5"`
}

// TranscribeConfig holds worker tuning and engine selection
type TranscribeConfig struct {
	Engine           string `envconfig:"ENGINE" default:"whisper"` // whisper | assemblyai
	WhisperBin       string `envconfig:"WHISPER_BIN" default:"whisper"`
	Language         string `envconfig:"LANGUAGE" default:"en"`
	AssemblyAIKey    string `envconfig:"ASSEMBLYAI_API_KEY" default:""`
	PollSeconds      int    `envconfig:"POLL_SECONDS" default:"5"`
	MaxIdlePolls     int    `envconfig:"MAX_IDLE_POLLS" default:"60"`
	LocalPathPrefix  string `envconfig:"LOCAL_PATH_PREFIX" default:""`
	RemotePathPrefix string `envconfig:"REMOTE_PATH_PREFIX" default:""`
}

// SignalConfig holds the cross-process stop/cancel signal configuration
type SignalConfig struct {
	Backend string `envconfig:"BACKEND" default:"file"` // file | redis
	Dir     string `envconfig:"DIR" default:"/tmp/auction-scribe/signals"`
}

// Load loads configuration from the environment, honoring a .env file if present
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables or defaults")
	}

	var cfg Config
	if err := envconfig.Process("scribe", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Transcribe.Engine == "assemblyai" && c.Transcribe.AssemblyAIKey == "" {
		return fmt.Errorf("SCRIBE_TRANSCRIBE_ASSEMBLYAI_API_KEY is required for the assemblyai engine")
	}
	if c.Signal.Backend != "file" && c.Signal.Backend != "redis" {
		return fmt.Errorf("SCRIBE_SIGNAL_BACKEND must be file or redis, got %q", c.Signal.Backend)
	}
	if c.Signal.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("redis signal backend requires SCRIBE_REDIS_ENABLED=true")
	}
	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}
