package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
	if cfg.EventBus != "auto" || cfg.FeedMode != "auto" {
		t.Fatalf("EventBus/FeedMode = %q/%q, want auto/auto", cfg.EventBus, cfg.FeedMode)
	}
	if cfg.FeedPollInterval != 2*time.Second {
		t.Fatalf("FeedPollInterval = %s, want 2s", cfg.FeedPollInterval)
	}
	if cfg.FeedReconcileInterval != 10*time.Second {
		t.Fatalf("FeedReconcileInterval = %s, want 10s", cfg.FeedReconcileInterval)
	}
	if cfg.AcceptAnswersAfterFinish {
		t.Fatal("AcceptAnswersAfterFinish should default to false")
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("DATABASE_URL", " postgres://survey@localhost/survey ")
	t.Setenv("EVENT_BUS", "Postgres")
	t.Setenv("FEED_MODE", "poll")
	t.Setenv("FEED_POLL_INTERVAL", "500ms")
	t.Setenv("ACCEPT_ANSWERS_AFTER_FINISH", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want :9191", cfg.BindAddr)
	}
	if cfg.DatabaseURL != "postgres://survey@localhost/survey" {
		t.Fatalf("DatabaseURL = %q, want trimmed value", cfg.DatabaseURL)
	}
	if cfg.EventBus != "postgres" || cfg.FeedMode != "poll" {
		t.Fatalf("EventBus/FeedMode = %q/%q", cfg.EventBus, cfg.FeedMode)
	}
	if cfg.FeedPollInterval != 500*time.Millisecond {
		t.Fatalf("FeedPollInterval = %s, want 500ms", cfg.FeedPollInterval)
	}
	if !cfg.AcceptAnswersAfterFinish {
		t.Fatal("AcceptAnswersAfterFinish = false, want true")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"FEED_MODE":               "sse",
		"EVENT_BUS":               "kafka",
		"FEED_POLL_INTERVAL":      "10ms",
		"FEED_RECONCILE_INTERVAL": "500ms",
		"FEED_SUBSCRIBER_BUFFER":  "0",
		"APP_ALLOW_ANY_ORIGIN":    "maybe",
		"LOG_FORMAT":              "xml",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q succeeded, want error", key, value)
			}
		})
	}
}

func TestPostgresBusRequiresPostgresURL(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("EVENT_BUS", "postgres")
	t.Setenv("DATABASE_URL", "sqlite:survey.db")
	if _, err := Load(); err == nil {
		t.Fatal("Load() succeeded, want error for postgres bus on sqlite")
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("SURVEYPULSE_DOTENV_PROBE=from-file\nAPP_BIND_ADDR=:7070\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("APP_BIND_ADDR", ":6060")
	t.Setenv("SURVEYPULSE_DOTENV_PROBE", "")
	os.Unsetenv("SURVEYPULSE_DOTENV_PROBE")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("SURVEYPULSE_DOTENV_PROBE"); got != "from-file" {
		t.Fatalf("probe = %q, want from-file", got)
	}
	if got := os.Getenv("APP_BIND_ADDR"); got != ":6060" {
		t.Fatalf("APP_BIND_ADDR = %q, want existing :6060", got)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"DATABASE_URL",
		"EVENT_BUS",
		"FEED_MODE",
		"FEED_POLL_INTERVAL",
		"FEED_RECONCILE_INTERVAL",
		"FEED_SUBSCRIBER_BUFFER",
		"CATALOG_FILE",
		"ACCEPT_ANSWERS_AFTER_FINISH",
		"LOG_LEVEL",
		"LOG_FORMAT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
