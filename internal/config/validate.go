package config

import (
	"fmt"
	"slices"
	"strings"
)

// Providers accepted by ANALYZER_PROVIDER.
var Providers = []string{"mock", "openai", "anthropic", "mistral", "ollama", "googleai"}

// problems accumulates validation failures across sections.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p *problems) positive(key string, ok bool) {
	if !ok {
		p.addf("%s must be positive", key)
	}
}

func (p *problems) oneOf(key, value string, allowed ...string) {
	if !slices.Contains(allowed, strings.ToLower(value)) {
		p.addf("%s (%q) must be one of: %s", key, value, strings.Join(allowed, ", "))
	}
}

// Validate reports every invalid setting in one error.
func (c *Config) Validate() error {
	var p problems
	c.Server.check(&p)
	c.Database.check(&p)
	c.Upload.check(&p)
	c.Content.check(&p)
	c.Analyzer.check(&p)
	c.Cache.check(&p)
	c.Rate.check(&p)
	c.Security.check(&p)
	c.Logging.check(&p)

	if len(p) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
	}
	return nil
}

func (c *ServerConfig) check(p *problems) {
	if c.Port <= 0 || c.Port > 65535 {
		p.addf("SERVER_PORT (%d) must be 1-65535", c.Port)
	}
	if c.ReadTimeout < 0 {
		p.addf("SERVER_READ_TIMEOUT must be non-negative")
	}
	p.positive("SERVER_SHUTDOWN_TIMEOUT", c.ShutdownTimeout > 0)
}

// The pool settings only matter once history is switched on.
func (c *DatabaseConfig) check(p *problems) {
	if !c.Enabled() {
		return
	}
	p.positive("DB_MAX_CONNS", c.MaxConns > 0)
	if c.MinConns < 0 {
		p.addf("DB_MIN_CONNS must be non-negative")
	}
	if c.MaxConns < c.MinConns {
		p.addf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.MaxConns, c.MinConns)
	}
}

func (c *UploadConfig) check(p *problems) {
	p.positive("UPLOAD_MAX_FILE_SIZE", c.MaxFileSize > 0)
	p.positive("UPLOAD_TTL", c.TTL > 0)
	if strings.TrimSpace(c.SweepSchedule) == "" {
		p.addf("UPLOAD_SWEEP_SCHEDULE must not be empty")
	}
}

func (c *ContentConfig) check(p *problems) {
	p.positive("MAX_IMAGE_PIXELS", c.MaxImagePixels > 0)
	p.positive("PDF_PAGE_LIMIT", c.PDFPageLimit > 0)
	p.positive("PREVIEW_ROW_CAP", c.PreviewRowCap > 0)
	if c.RenderDPI < 36 || c.RenderDPI > 600 {
		p.addf("RENDER_DPI (%d) must be 36-600", c.RenderDPI)
	}
}

func (c *AnalyzerConfig) check(p *problems) {
	p.oneOf("ANALYZER_PROVIDER", c.Provider, Providers...)
	p.positive("ANALYZER_WAIT", c.MaxWait > 0)
	p.positive("ANALYZER_TIMEOUT", c.Timeout > 0)
}

func (c *CacheConfig) check(p *problems) {
	p.oneOf("CACHE_SCOPE", c.Scope, "none", "shared", "session", "credential")
	p.positive("CACHE_TTL", c.TTL > 0)
	if c.MaxEntries < 0 {
		p.addf("CACHE_MAX_ENTRIES must be non-negative")
	}
	if c.MaxResults < 0 {
		p.addf("RESULT_MAX_ENTRIES must be non-negative")
	}
}

func (c *RateLimitConfig) check(p *problems) {
	if !c.Enabled {
		return
	}
	p.positive("RATE_LIMIT_REQUESTS_PER_MINUTE", c.RequestsPerMinute > 0)
	p.positive("RATE_LIMIT_UPLOAD", c.UploadLimit > 0)
}

func (c *SecurityConfig) check(p *problems) {
	if c.RequireAPIKey && len(c.APIKeys) == 0 {
		p.addf("REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}
}

func (c *LoggingConfig) check(p *problems) {
	p.oneOf("LOG_LEVEL", c.Level, "debug", "info", "warn", "error")
	p.oneOf("LOG_FORMAT", c.Format, "text", "json")
}

// String renders the configuration for startup logs with secrets masked.
func (c *Config) String() string {
	db := "disabled"
	if c.Database.Enabled() {
		db = fmt.Sprintf("URL: [MASKED], MaxConns: %d, MinConns: %d", c.Database.MaxConns, c.Database.MinConns)
	}

	sections := []string{
		fmt.Sprintf("Server: {Addr: %q}", c.Server.Addr()),
		"Database: {" + db + "}",
		fmt.Sprintf("Upload: {MaxFileSize: %d, TTL: %s, SweepSchedule: %q}",
			c.Upload.MaxFileSize, c.Upload.TTL, c.Upload.SweepSchedule),
		fmt.Sprintf("Content: {MaxImagePixels: %d, PDFPageLimit: %d, PreviewRowCap: %d, RenderDPI: %d}",
			c.Content.MaxImagePixels, c.Content.PDFPageLimit, c.Content.PreviewRowCap, c.Content.RenderDPI),
		fmt.Sprintf("Analyzer: {Provider: %q, Model: %q, APIKey: %q}",
			c.Analyzer.Provider, c.Analyzer.Model, masked(c.Analyzer.APIKey)),
		fmt.Sprintf("Cache: {Scope: %q, TTL: %s, MaxEntries: %d, MaxResults: %d, Secret: %q}",
			c.Cache.Scope, c.Cache.TTL, c.Cache.MaxEntries, c.Cache.MaxResults, masked(c.Cache.Secret)),
		fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d, UploadLimit: %d}",
			c.Rate.Enabled, c.Rate.RequestsPerMinute, c.Rate.UploadLimit),
		fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: %d, TrustedProxies: %d}",
			c.Security.RequireAPIKey, len(c.Security.APIKeys), len(c.Security.TrustedProxies)),
		fmt.Sprintf("Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format),
	}
	return "Config{" + strings.Join(sections, ", ") + "}"
}

func masked(s string) string {
	if s == "" {
		return ""
	}
	return "[MASKED]"
}
