package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the survey service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string
	EventBus    string

	FeedMode              string
	FeedPollInterval      time.Duration
	FeedReconcileInterval time.Duration
	FeedSubscriberBuffer  int

	CatalogFile              string
	AcceptAnswersAfterFinish bool

	LogLevel  string
	LogFormat string
}

// LoadDotEnv reads KEY=value pairs from the given files (".env" when none)
// into the process environment. Variables already set are kept, and missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "surveypulse"),
		AllowAnyOrigin:        false,
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		EventBus:              strings.ToLower(envOrDefault("EVENT_BUS", "auto")),
		FeedMode:              strings.ToLower(envOrDefault("FEED_MODE", "auto")),
		CatalogFile:           stringsTrimSpace("CATALOG_FILE"),
		LogLevel:              strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat:             strings.ToLower(envOrDefault("LOG_FORMAT", "text")),
		ShutdownTimeout:       15 * time.Second,
		FeedPollInterval:      2 * time.Second,
		FeedReconcileInterval: 10 * time.Second,
		FeedSubscriberBuffer:  64,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.FeedPollInterval, err = durationFromEnv("FEED_POLL_INTERVAL", cfg.FeedPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.FeedReconcileInterval, err = durationFromEnv("FEED_RECONCILE_INTERVAL", cfg.FeedReconcileInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.FeedSubscriberBuffer, err = intFromEnv("FEED_SUBSCRIBER_BUFFER", cfg.FeedSubscriberBuffer)
	if err != nil {
		return Config{}, err
	}
	cfg.AcceptAnswersAfterFinish, err = boolFromEnv("ACCEPT_ANSWERS_AFTER_FINISH", cfg.AcceptAnswersAfterFinish)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Load calls it; callers that
// override fields afterwards should call it again.
func (c Config) Validate() error {
	switch c.EventBus {
	case "auto", "memory", "postgres", "none":
	default:
		return fmt.Errorf("EVENT_BUS must be one of auto|memory|postgres|none, got %q", c.EventBus)
	}
	switch c.FeedMode {
	case "auto", "push", "poll":
	default:
		return fmt.Errorf("FEED_MODE must be one of auto|push|poll, got %q", c.FeedMode)
	}
	if c.FeedPollInterval < 100*time.Millisecond {
		return fmt.Errorf("FEED_POLL_INTERVAL must be at least 100ms")
	}
	if c.FeedReconcileInterval < time.Second {
		return fmt.Errorf("FEED_RECONCILE_INTERVAL must be at least 1s")
	}
	if c.FeedSubscriberBuffer <= 0 {
		return fmt.Errorf("FEED_SUBSCRIBER_BUFFER must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.EventBus == "postgres" && !IsPostgresURL(c.DatabaseURL) {
		return fmt.Errorf("EVENT_BUS=postgres requires a postgres DATABASE_URL")
	}
	if c.FeedMode == "push" && c.EventBus == "none" {
		return fmt.Errorf("FEED_MODE=push requires an event bus")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// IsPostgresURL reports whether url selects the postgres backend.
func IsPostgresURL(url string) bool {
	url = strings.TrimSpace(url)
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
