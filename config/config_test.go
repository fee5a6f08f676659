package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "argus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Settings.PollInterval)
	assert.Equal(t, 5, cfg.Settings.MaxConsecutiveErrors)
	assert.Equal(t, "http://localhost:3100", cfg.Source.URL)

	assert.True(t, cfg.Deduplication.Enabled)
	assert.Equal(t, "memory", cfg.Deduplication.Store)
	assert.Equal(t, 5, cfg.Deduplication.WindowMinutes)
	assert.Equal(t, 3, cfg.Deduplication.MaxOccurrences)
	assert.Equal(t, []string{"rule_name", "session_id"}, cfg.Deduplication.KeyFields)

	assert.Equal(t, 20, cfg.Behavior.HighFrequencyCount)
	assert.Equal(t, 3, cfg.Behavior.ScopeViolationLimit)

	assert.True(t, cfg.Notifications.Console.Enabled)
	assert.Equal(t, "MEDIUM", cfg.Notifications.Console.MinSeverity)
	assert.False(t, cfg.Notifications.Webhook.Enabled)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/argus.yaml")
	assert.Error(t, err)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
settings:
  poll_interval: 10s
  max_consecutive_errors: 8
source:
  url: http://loki.internal:3100
  query: '{service="agent-telemetry",env="prod"}'
rules:
  dangerous_commands:
    enabled: true
    severity: HIGH
    pattern: "rm\\s+-rf"
    description: Destructive command executed
    category: command_execution
    context_fields:
      - action_details.command
deduplication:
  window_minutes: 10
  max_occurrences: 2
notifications:
  webhook:
    enabled: true
    url: https://hooks.example.com/alerts
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Settings.PollInterval)
	assert.Equal(t, 8, cfg.Settings.MaxConsecutiveErrors)
	assert.Equal(t, "http://loki.internal:3100", cfg.Source.URL)

	require.Contains(t, cfg.Rules, "dangerous_commands")
	rule := cfg.Rules["dangerous_commands"]
	assert.True(t, rule.Enabled)
	assert.Equal(t, "HIGH", rule.Severity)
	assert.Equal(t, []string{"action_details.command"}, rule.ContextFields)

	assert.Equal(t, 10, cfg.Deduplication.WindowMinutes)
	assert.Equal(t, 2, cfg.Deduplication.MaxOccurrences)

	// Defaults still apply to everything the file leaves out.
	assert.True(t, cfg.Notifications.Console.Enabled)
	assert.Equal(t, "https://hooks.example.com/alerts", cfg.Notifications.Webhook.URL)
}

func TestLoadConfigWebhookRequiresURL(t *testing.T) {
	path := writeConfig(t, `
notifications:
  webhook:
    enabled: true
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigEmailRequiresHost(t *testing.T) {
	path := writeConfig(t, `
notifications:
  email:
    enabled: true
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigInvalidStore(t *testing.T) {
	path := writeConfig(t, `
deduplication:
  store: cassandra
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigInvalidMinSeverity(t *testing.T) {
	path := writeConfig(t, `
notifications:
  console:
    min_severity: EXTREME
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("ARGUS_SOURCE_URL", "http://loki.override:3100")
	t.Setenv("ARGUS_REDIS_PASSWORD", "hunter2")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "http://loki.override:3100", cfg.Source.URL)
	assert.Equal(t, "hunter2", cfg.Deduplication.Redis.Password)
}
