// Package config loads the converter's settings from environment variables
// (optionally seeded from a .env file by the caller), applies defaults and
// validates them before anything starts.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all settings, one struct per concern.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Content  ContentConfig
	Analyzer AnalyzerConfig
	Cache    CacheConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 3m, conversions are slow)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"3m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 3m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"3m"`
}

// DatabaseConfig holds database connection settings.
// The database only backs conversion history; leaving URL empty disables it.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (optional)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database URL was configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// UploadConfig holds temporary upload storage settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size; accepts unit suffixes (default: 20MiB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" unit:"bytes" default:"20MiB"`

	// Root is the directory holding one sub-directory per upload
	// (default: <os temp>/legato_ocr_sessions)
	Root string `env:"UPLOAD_ROOT"`

	// TTL is how long an upload may sit unread before the sweeper reclaims it (default: 1h)
	TTL time.Duration `env:"UPLOAD_TTL" envAlt:"TEMP_TTL" default:"1h"`

	// SweepSchedule is a cron spec for the retention sweeper (default: every 10 minutes)
	SweepSchedule string `env:"UPLOAD_SWEEP_SCHEDULE" default:"@every 10m"`
}

// ContentConfig holds limits applied while validating and rendering content.
type ContentConfig struct {
	// MaxImagePixels is the pixel ceiling for any decoded image (default: 80 megapixels)
	MaxImagePixels int64 `env:"MAX_IMAGE_PIXELS" default:"80000000"`

	// PDFPageLimit is the maximum number of pages a PDF may have (default: 10)
	PDFPageLimit int `env:"PDF_PAGE_LIMIT" default:"10"`

	// PreviewRowCap is the number of rows shown in a preview (default: 50)
	PreviewRowCap int `env:"PREVIEW_ROW_CAP" default:"50"`

	// RenderDPI is the requested resolution for PDF page rasterization (default: 200)
	RenderDPI int `env:"RENDER_DPI" default:"200"`

	// PdftoppmPath is the rasterizer binary (default: pdftoppm on PATH)
	PdftoppmPath string `env:"PDFTOPPM_PATH" default:"pdftoppm"`
}

// AnalyzerConfig holds vision model settings.
type AnalyzerConfig struct {
	// Provider selects the model backend: mock, openai, anthropic, mistral, ollama, googleai (default: mock)
	Provider string `env:"ANALYZER_PROVIDER" default:"mock"`

	// Model is the model identifier passed to the provider
	Model string `env:"ANALYZER_MODEL" envAlt:"GEMINI_MODEL_NAME" default:"gemini-1.5-flash"`

	// APIKey is the fallback credential when a request does not carry one
	APIKey string `env:"ANALYZER_API_KEY" envAlt:"GOOGLE_API_KEY"`

	// BaseURL overrides the provider endpoint (openai-compatible routers, ollama host)
	BaseURL string `env:"ANALYZER_BASE_URL"`

	// MaxWait is how long a request waits for the analysis slot (default: 30s)
	MaxWait time.Duration `env:"ANALYZER_WAIT" default:"30s"`

	// Timeout bounds a single model call (default: 2m)
	Timeout time.Duration `env:"ANALYZER_TIMEOUT" default:"2m"`
}

// CacheConfig holds conversion result cache settings.
type CacheConfig struct {
	// Scope is the cache key scoping policy: none, shared, session, credential (default: credential)
	Scope string `env:"CACHE_SCOPE" default:"credential"`

	// TTL is how long cached analyses and finished results live (default: 1h)
	TTL time.Duration `env:"CACHE_TTL" default:"1h"`

	// MaxEntries bounds the number of cached analyses (default: 64)
	MaxEntries int `env:"CACHE_MAX_ENTRIES" default:"64"`

	// MaxResults bounds the number of finished workbooks held for download (default: 32)
	MaxResults int `env:"RESULT_MAX_ENTRIES" default:"32"`

	// Secret keys the HMAC used for credential-scoped cache keys (random per process when empty)
	Secret string `env:"CACHE_SECRET"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload and convert endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey enables X-API-Key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// AllowedOrigins is a comma-separated list of CORS origins (empty disables CORS)
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
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
