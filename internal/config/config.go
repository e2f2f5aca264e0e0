// Package config handles application configuration and environment
// loading.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"qtune/internal/domain"
)

// Defaults for the tuning loop.
const (
	DefaultModel        = "claude-3-5-sonnet-latest"
	DefaultRuns         = 3
	DefaultWarmup       = 1
	DefaultTimeout      = 60 * time.Second
	DefaultMaxIters     = 3
	DefaultThreshold    = 0.10
	DefaultMaxToolSteps = 30
)

// Config holds everything one tuning session needs.
type Config struct {
	DBPath    string // target DuckDB file
	Query     string // SQL literal (alternative to QueryFile)
	QueryFile string // path to a .sql file
	Label     string // optional identifying label for the query

	Model        string // reasoning service model name
	APIKey       string // reasoning service API key
	MaxToolSteps int    // tool calls per candidate turn

	Runs    int           // measured benchmark runs
	Warmup  int           // discarded warmup runs
	Timeout time.Duration // per-run execution timeout

	MaxIters  int     // iteration budget
	Threshold float64 // improvement ratio target

	ReportDB string // optional SQLite report artifact path
	LogLevel string // debug, info, warn, error
}

// LoadFromEnv returns a Config with defaults applied and environment
// overrides read. Flags merge on top of this.
func LoadFromEnv() *Config {
	cfg := &Config{
		Model:        envOr("QTUNE_MODEL", DefaultModel),
		APIKey:       os.Getenv("ANTHROPIC_API_KEY"),
		MaxToolSteps: DefaultMaxToolSteps,
		Runs:         DefaultRuns,
		Warmup:       DefaultWarmup,
		Timeout:      DefaultTimeout,
		MaxIters:     DefaultMaxIters,
		Threshold:    DefaultThreshold,
		LogLevel:     envOr("QTUNE_LOG_LEVEL", "info"),
	}
	return cfg
}

// Validate checks the configuration before a session starts. All
// violations are ConfigErrors: fatal, surfaced immediately.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return domain.ErrConfig("database path is required")
	}
	if c.Query == "" && c.QueryFile == "" {
		return domain.ErrConfig("provide a query or a query file")
	}
	if c.Query != "" && c.QueryFile != "" {
		return domain.ErrConfig("provide either a query or a query file, not both")
	}
	if c.APIKey == "" {
		return domain.ErrConfig("reasoning service API key is required (set ANTHROPIC_API_KEY)")
	}
	if c.Runs < 1 {
		return domain.ErrConfig("runs must be >= 1, got %d", c.Runs)
	}
	if c.Warmup < 0 {
		return domain.ErrConfig("warmup must be >= 0, got %d", c.Warmup)
	}
	if c.Timeout <= 0 {
		return domain.ErrConfig("timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxIters < 1 {
		return domain.ErrConfig("max iterations must be >= 1, got %d", c.MaxIters)
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return domain.ErrConfig("threshold must be in (0, 1), got %g", c.Threshold)
	}
	if c.MaxToolSteps < 1 {
		return domain.ErrConfig("max tool steps must be >= 1, got %d", c.MaxToolSteps)
	}
	return nil
}

// QuerySQL resolves the query text from the literal or the file.
func (c *Config) QuerySQL() (string, error) {
	if c.Query != "" {
		return c.Query, nil
	}
	data, err := os.ReadFile(c.QueryFile)
	if err != nil {
		return "", domain.ErrConfig("read query file: %v", err)
	}
	sqlText := strings.TrimSpace(string(data))
	if sqlText == "" {
		return "", domain.ErrConfig("query file %s is empty", c.QueryFile)
	}
	return sqlText, nil
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
