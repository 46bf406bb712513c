// Package config loads gradebook settings from environment variables,
// applies defaults and validates everything on startup.
package config

import (
	"net"
	"strconv"
	"time"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendHTTP     = "http"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Remote   RemoteConfig
	Cache    CacheConfig
	Import   ImportConfig
	View     ViewConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including waiting for
	// running imports.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for API requests.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is one of postgres, http or memory (default: memory)
	Backend string `env:"STORE_BACKEND" default:"memory"`

	// PageSize is the listing page size served by postgres and memory.
	// The http backend uses whatever the remote service returns.
	PageSize int `env:"STORE_PAGE_SIZE" default:"100"`
}

// DatabaseConfig holds PostgreSQL pool settings. URL is required only for
// the postgres backend.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" envAlt:"DB_URL"`
	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RemoteConfig configures the HTTP student store client.
type RemoteConfig struct {
	BaseURL        string        `env:"REMOTE_BASE_URL" envAlt:"STUDENT_STORE_URL"`
	Timeout        time.Duration `env:"REMOTE_TIMEOUT" default:"10s"`
	MaxRetries     int           `env:"REMOTE_MAX_RETRIES" default:"3"`
	InitialBackoff time.Duration `env:"REMOTE_INITIAL_BACKOFF" default:"200ms"`
	MaxBackoff     time.Duration `env:"REMOTE_MAX_BACKOFF" default:"5s"`
}

// CacheConfig configures the Redis snapshot cache. An empty URL disables it.
type CacheConfig struct {
	RedisURL string        `env:"REDIS_URL"`
	Key      string        `env:"CACHE_KEY" default:"gradebook:snapshot:v1"`
	TTL      time.Duration `env:"CACHE_TTL" default:"10m"`
}

// ImportConfig holds CSV import settings.
type ImportConfig struct {
	// MaxFileSize is the largest accepted upload in bytes (default: 10MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"10485760"`

	UpdateExisting bool `env:"IMPORT_UPDATE_EXISTING" default:"false"`
	SkipInvalid    bool `env:"IMPORT_SKIP_INVALID" default:"true"`

	// MaxConcurrent is the number of imports allowed to run at once.
	MaxConcurrent int           `env:"IMPORT_MAX_CONCURRENT" default:"1"`
	MaxWaitTime   time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"5s"`

	// YieldEvery rows the importer pauses for YieldPause.
	YieldEvery int           `env:"IMPORT_YIELD_EVERY" default:"50"`
	YieldPause time.Duration `env:"IMPORT_YIELD_PAUSE" default:"10ms"`

	HistorySize int `env:"IMPORT_HISTORY_SIZE" default:"20"`
}

// ViewConfig bounds table pagination.
type ViewConfig struct {
	DefaultPageSize int `env:"VIEW_DEFAULT_PAGE_SIZE" default:"10"`
	MaxPageSize     int `env:"VIEW_MAX_PAGE_SIZE" default:"100"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// ImportLimit is requests per minute for import endpoints.
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are honoured.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
