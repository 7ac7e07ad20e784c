package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "groundquery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), quiet)
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxRows, cfg.Policy.MaxRows)
	assert.Equal(t, []string{"sql.query", "rag.search"}, cfg.Policy.AllowedTools)
	assert.Equal(t, DefaultToolTimeoutMs, cfg.Tools.TimeoutMs)
	assert.Equal(t, DefaultPlannerTemperature, cfg.Planner.Temperature)
	assert.Equal(t, DefaultPlannerMaxRetries, cfg.Planner.MaxRetries)
	assert.Equal(t, DefaultMaxToolCallsPerPlan, cfg.Policy.MaxToolCallsPerPlan)
	assert.Contains(t, cfg.Policy.ForbiddenFunctions, "pg_sleep")
	assert.Contains(t, cfg.Policy.ForbiddenFunctions, "dblink")
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
policy:
  max_rows: 50
  allowed_tables: [workspaces, users]
tools:
  timeout_ms: 5000
`)
	cfg, err := Load(path, quiet)
	require.NoError(t, err)

	assert.Equal(t, int64(50), cfg.Policy.MaxRows)
	assert.Equal(t, []string{"workspaces", "users"}, cfg.Policy.AllowedTables)
	assert.Equal(t, int64(5000), cfg.Tools.TimeoutMs)
	// Untouched sections still get defaults.
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-test-123")
	path := writeConfig(t, `
llm:
  api_key: "{{.TEST_LLM_KEY}}"
`)
	cfg, err := Load(path, quiet)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 99999
`)
	_, err := Load(path, quiet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "policy: [not: a map")
	_, err := Load(path, quiet)
	require.Error(t, err)
}

func TestExpandEnvLeavesDollarAlone(t *testing.T) {
	out := ExpandEnv([]byte(`pattern: "^secret.*$"`))
	assert.Equal(t, `pattern: "^secret.*$"`, string(out))
}
