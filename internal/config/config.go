// Package config loads the service configuration from environment variables.
// Defaults come from struct tags; Load validates everything at once so a
// misconfigured deployment fails on startup with the full list of problems.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Submission SubmissionConfig
	Import     ImportConfig
	History    HistoryConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout stays 0 so progress streams are not cut off.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the optional history database. With no URL the
// history is kept in memory.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" envAlt:"DB_URL"`
	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a history database is configured.
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// SubmissionConfig points at the pharmacy API that receives the batches.
type SubmissionConfig struct {
	BaseURL         string        `env:"API_BASE_URL" required:"true"`
	Token           string        `env:"API_TOKEN"`
	Timeout         time.Duration `env:"API_TIMEOUT" default:"60s"`
	RequestIDHeader string        `env:"API_REQUEST_ID_HEADER" default:"X-Request-Id"`
}

// ImportConfig holds the pipeline settings.
type ImportConfig struct {
	// BatchSize is the number of records per submission (default: 50)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"50"`

	// PacingDelay is the pause between batches (default: 300ms)
	PacingDelay time.Duration `env:"IMPORT_PACING_DELAY" default:"300ms"`

	// MaxFileSize is the largest accepted spreadsheet in bytes (default: 10MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"10485760"`

	MaxConcurrent int           `env:"IMPORT_MAX_CONCURRENT" default:"5"`
	MaxWaitTime   time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`
	UploadTimeout time.Duration `env:"IMPORT_UPLOAD_TIMEOUT" default:"30m"`

	// SessionTTL is how long an untouched session is kept (default: 1h)
	SessionTTL time.Duration `env:"IMPORT_SESSION_TTL" default:"1h"`
}

// HistoryConfig holds the retention policy for recorded runs.
type HistoryConfig struct {
	RetentionDays int           `env:"HISTORY_RETENTION_DAYS" default:"90"`
	CheckInterval time.Duration `env:"HISTORY_CHECK_INTERVAL" default:"24h"`
	MemoryLimit   int           `env:"HISTORY_MEMORY_LIMIT" default:"500"`
}

// RateLimitConfig holds per-IP rate limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit applies to file and upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are honored.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
