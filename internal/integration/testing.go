package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"helpdesk-ai/internal/infra/config"
)

// Config holds integration test configuration from environment
type Config struct {
	OpenAIKey   string
	GeminiKey   string
	Jira        config.JiraConfig
	TestTimeout time.Duration
	SkipSlow    bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	return &Config{
		OpenAIKey: os.Getenv("OPENAI_API_KEY"),
		GeminiKey: os.Getenv("GEMINI_API_KEY"),
		Jira: config.JiraConfig{
			Domain:   os.Getenv("JIRA_DOMAIN"),
			Email:    os.Getenv("JIRA_EMAIL"),
			APIToken: os.Getenv("JIRA_API_TOKEN"),
			Project:  envOr("JIRA_PROJECT", "IT"),
			Timeout:  15 * time.Second,
		},
		TestTimeout: 60 * time.Second,
		SkipSlow:    os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// SkipIfNoAPIKey skips the test if the required API key is not set
func SkipIfNoAPIKey(t *testing.T, key, name string) {
	t.Helper()
	if key == "" {
		t.Skipf("Skipping %s integration test: %s_API_KEY not set", name, name)
	}
}

// SkipIfNoJira skips the test unless Jira credentials are set.
func SkipIfNoJira(t *testing.T, cfg config.JiraConfig) {
	t.Helper()
	if cfg.Domain == "" || cfg.Email == "" || cfg.APIToken == "" {
		t.Skip("Skipping Jira integration test: JIRA_DOMAIN, JIRA_EMAIL and JIRA_API_TOKEN required")
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// TestLogger discards output unless HELPDESK_TEST_VERBOSE=1.
func TestLogger() *slog.Logger {
	if os.Getenv("HELPDESK_TEST_VERBOSE") == "1" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
