package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the reelscript service.
// Environment variables are automatically parsed from the REELSCRIPT_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`
	BaseURL  string `envconfig:"BASE_URL" default:"http://localhost:8080"`

	// Durable store (Postgres)
	PostgresDSN string `envconfig:"POSTGRES_DSN" required:"true"`

	// Ephemeral store
	EphemeralDriver string `envconfig:"EPHEMERAL_DRIVER" default:"redis"`
	EphemeralURL    string `envconfig:"EPHEMERAL_URL" default:"redis://localhost:6379/0"`
	BadgerPath      string `envconfig:"BADGER_PATH" default:""`

	// Generator
	OpenAIKey      string `envconfig:"OPENAI_KEY" required:"true"`
	GeneratorModel string `envconfig:"GENERATOR_MODEL" default:"gpt-4o"`

	// Object upload
	ImageProvider string `envconfig:"IMAGE_PROVIDER" default:"gcs"`
	GCSBucket     string `envconfig:"GCS_BUCKET" default:""`

	// Messaging platform
	ManychatAPIKey    string `envconfig:"MANYCHAT_API_KEY" required:"true"`
	ManychatBaseURL   string `envconfig:"MANYCHAT_BASE_URL" default:"https://api.manychat.com"`
	CopyURLField      string `envconfig:"COPY_URL_FIELD" default:"script_copy_url"`
	ImageURLField     string `envconfig:"IMAGE_URL_FIELD" default:"script_image_url"`
	DirectMessageSend bool   `envconfig:"DIRECT_MESSAGE_SEND" default:"false"`

	// External tools
	YtDlpPath   string `envconfig:"YTDLP_PATH" default:"yt-dlp"`
	FFmpegPath  string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath string `envconfig:"FFPROBE_PATH" default:"ffprobe"`
	CookiesPath string `envconfig:"COOKIES_PATH" default:""`
	TempRoot    string `envconfig:"TEMP_ROOT" default:""`

	// Analysis
	AnalysisMode string `envconfig:"ANALYSIS_MODE" default:"hybrid"`

	// Download limits
	MaxVideoSeconds int   `envconfig:"MAX_VIDEO_SECONDS" default:"300"`
	MaxVideoBytes   int64 `envconfig:"MAX_VIDEO_BYTES" default:"52428800"`

	// Queue and worker
	QueueConcurrency     int           `envconfig:"QUEUE_CONCURRENCY" default:"5"`
	QueueStartsPerMinute int           `envconfig:"QUEUE_STARTS_PER_MINUTE" default:"10"`
	QueueMaxAttempts     int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"3"`
	JobTimeout           time.Duration `envconfig:"JOB_TIMEOUT" default:"5m"`
	JobRetention         time.Duration `envconfig:"JOB_RETENTION" default:"168h"`

	// Access control
	BetaCapacity         int    `envconfig:"BETA_CAPACITY" default:"100"`
	UserRateLimitPerHour int    `envconfig:"USER_RATE_LIMIT_PER_HOUR" default:"10"`
	IPRateLimitPerMinute int    `envconfig:"IP_RATE_LIMIT_PER_MINUTE" default:"60"`
	AdminAPIKey          string `envconfig:"ADMIN_API_KEY" default:""`

	// Session and cache lifetimes
	SessionTTL   time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	VariationTTL time.Duration `envconfig:"VARIATION_TTL" default:"168h"`
	AnalysisTTL  time.Duration `envconfig:"ANALYSIS_TTL" default:"168h"`
	BlockTTL     time.Duration `envconfig:"BLOCK_TTL" default:"24h"`

	SoftVariationLimit int `envconfig:"SOFT_VARIATION_LIMIT" default:"5"`

	// Circuit breaker defaults (per-service overrides are code-level)
	BreakerFailureThreshold int           `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerResetTimeout     time.Duration `envconfig:"BREAKER_RESET_TIMEOUT" default:"30s"`
	BreakerSuccessThreshold int           `envconfig:"BREAKER_SUCCESS_THRESHOLD" default:"2"`
	BreakerFailureWindow    time.Duration `envconfig:"BREAKER_FAILURE_WINDOW" default:"60s"`

	// External call timeouts. Video downloads run far longer than any API
	// round trip, so the downloader gets its own ceiling.
	AdapterTimeout  time.Duration `envconfig:"ADAPTER_TIMEOUT" default:"30s"`
	DownloadTimeout time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"4m"`

	// Health checking
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"5"`
}

// ResolveDefaults validates enumerated options. Unknown values are rejected
// at boot rather than surfacing later inside the worker.
func (c *Config) ResolveDefaults() error {
	allowedAnalysis := map[string]bool{"audio": true, "frames": true, "hybrid": true}
	if !allowedAnalysis[c.AnalysisMode] {
		return fmt.Errorf("unsupported ANALYSIS_MODE: %s", c.AnalysisMode)
	}
	allowedDriver := map[string]bool{"redis": true, "badger": true}
	if !allowedDriver[c.EphemeralDriver] {
		return fmt.Errorf("unsupported EPHEMERAL_DRIVER: %s", c.EphemeralDriver)
	}
	if c.EphemeralDriver == "badger" && c.BadgerPath == "" {
		return fmt.Errorf("EPHEMERAL_DRIVER=badger requires BADGER_PATH")
	}
	allowedImage := map[string]bool{"gcs": true, "none": true}
	if !allowedImage[c.ImageProvider] {
		return fmt.Errorf("unsupported IMAGE_PROVIDER: %s", c.ImageProvider)
	}
	if c.ImageProvider == "gcs" && c.GCSBucket == "" {
		return fmt.Errorf("IMAGE_PROVIDER=gcs requires GCS_BUCKET")
	}
	if c.QueueConcurrency <= 0 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be positive")
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// A local .env file is loaded first when present; real environment
// variables always win over .env entries.
func New() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("REELSCRIPT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("ephemeral_driver", cfg.EphemeralDriver).
		Str("analysis_mode", cfg.AnalysisMode).
		Int("queue_concurrency", cfg.QueueConcurrency).
		Int("beta_capacity", cfg.BetaCapacity).
		Str("postgres_dsn_present", boolStr(cfg.PostgresDSN != "")).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing.
func NewForTesting() *Config {
	return &Config{
		Environment:             EnvTesting,
		HTTPPort:                8080,
		BaseURL:                 "http://localhost:8080",
		PostgresDSN:             "postgres://localhost:5432/reelscript_test",
		EphemeralDriver:         "redis",
		EphemeralURL:            "redis://localhost:6379/1",
		OpenAIKey:               "test-key",
		GeneratorModel:          "gpt-4o",
		ImageProvider:           "none",
		ManychatAPIKey:          "test-key",
		ManychatBaseURL:         "https://api.manychat.com",
		CopyURLField:            "script_copy_url",
		ImageURLField:           "script_image_url",
		YtDlpPath:               "yt-dlp",
		FFmpegPath:              "ffmpeg",
		FFprobePath:             "ffprobe",
		AnalysisMode:            "hybrid",
		MaxVideoSeconds:         300,
		MaxVideoBytes:           50 << 20,
		QueueConcurrency:        5,
		QueueStartsPerMinute:    10,
		QueueMaxAttempts:        3,
		JobTimeout:              5 * time.Minute,
		JobRetention:            7 * 24 * time.Hour,
		BetaCapacity:            100,
		UserRateLimitPerHour:    10,
		IPRateLimitPerMinute:    60,
		SessionTTL:              30 * time.Minute,
		VariationTTL:            7 * 24 * time.Hour,
		AnalysisTTL:             7 * 24 * time.Hour,
		BlockTTL:                24 * time.Hour,
		SoftVariationLimit:      5,
		BreakerFailureThreshold: 5,
		BreakerResetTimeout:     30 * time.Second,
		BreakerSuccessThreshold: 2,
		BreakerFailureWindow:    60 * time.Second,
		AdapterTimeout:          30 * time.Second,
		DownloadTimeout:         4 * time.Minute,

		HealthIntervalSeconds:     30,
		HealthProbeTimeoutSeconds: 5,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool { return c.Environment == EnvTesting }

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool { return c.Environment == EnvProduction }

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string { return fmt.Sprintf(":%d", c.HTTPPort) }

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
