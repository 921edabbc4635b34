package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Fetch     FetchConfig
	Kernel    KernelConfig
	Registry  RegistryConfig
	History   HistoryConfig
	Artifacts ArtifactConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	// CORSOrigins is a comma-separated allow list; empty allows any origin.
	CORSOrigins []string `envconfig:"CORS_ORIGINS"`
}

// FetchConfig holds notebook document fetching configuration.
type FetchConfig struct {
	Timeout      time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	MaxRetries   int           `envconfig:"FETCH_MAX_RETRIES" default:"3"`
	RetryWaitMin time.Duration `envconfig:"FETCH_RETRY_WAIT_MIN" default:"500ms"`
	RetryWaitMax time.Duration `envconfig:"FETCH_RETRY_WAIT_MAX" default:"10s"`
	// RequestsPerSecond of 0 leaves fetching unthrottled.
	RequestsPerSecond float64 `envconfig:"FETCH_RPS" default:"0"`
	MaxBytes          int64   `envconfig:"FETCH_MAX_BYTES" default:"33554432"`
	Token             string  `envconfig:"FETCH_TOKEN"`
	UserAgent         string  `envconfig:"FETCH_USER_AGENT" default:"nbapi/1.0"`
	AllowFiles        bool    `envconfig:"FETCH_ALLOW_FILES" default:"false"`
}

// KernelConfig holds interpreter backend configuration.
type KernelConfig struct {
	// Backend is jupyter, jsvm, govm or auto.
	Backend      string        `envconfig:"KERNEL_BACKEND" default:"auto"`
	GatewayURL   string        `envconfig:"KERNEL_GATEWAY_URL" default:"http://localhost:8888"`
	GatewayToken string        `envconfig:"KERNEL_GATEWAY_TOKEN"`
	DefaultName  string        `envconfig:"KERNEL_DEFAULT_NAME" default:"python3"`
	StageTimeout time.Duration `envconfig:"KERNEL_STAGE_TIMEOUT" default:"0s"`
	StartTimeout time.Duration `envconfig:"KERNEL_START_TIMEOUT" default:"60s"`
}

// RegistryConfig holds service registry configuration.
type RegistryConfig struct {
	Dir    string `envconfig:"REGISTRY_DIR" default:"./services"`
	Format string `envconfig:"REGISTRY_FORMAT" default:"yaml"`
	Watch  bool   `envconfig:"REGISTRY_WATCH" default:"true"`
}

// HistoryConfig holds run history configuration.
type HistoryConfig struct {
	// Path of the SQLite database; empty disables run history.
	Path string `envconfig:"HISTORY_PATH" default:"./nbapi.db"`
}

// ArtifactConfig holds output collection configuration.
type ArtifactConfig struct {
	BaseDir string `envconfig:"ARTIFACT_DIR" default:"."`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 15 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:      30 * time.Second,
			MaxRetries:   3,
			RetryWaitMin: 500 * time.Millisecond,
			RetryWaitMax: 10 * time.Second,
			MaxBytes:     32 << 20,
			UserAgent:    "nbapi/1.0",
		},
		Kernel: KernelConfig{
			Backend:      "auto",
			GatewayURL:   "http://localhost:8888",
			DefaultName:  "python3",
			StartTimeout: 60 * time.Second,
		},
		Registry: RegistryConfig{
			Dir:    "./services",
			Format: "yaml",
			Watch:  true,
		},
		History: HistoryConfig{
			Path: "./nbapi.db",
		},
		Artifacts: ArtifactConfig{
			BaseDir: ".",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
