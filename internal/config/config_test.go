package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(2_000_000), cfg.TokenLimit)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "memory", cfg.Events.Backend)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "python3", cfg.Execution.Interpreter)
	assert.Equal(t, time.Duration(0), cfg.Timeouts.TaskExecution)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.ExecutionStage)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("TOKEN_LIMIT", "500")
	t.Setenv("WORKER_POOL_SIZE", "2")
	t.Setenv("TIMEOUT_TASK_EXECUTION", "90s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, int64(500), cfg.TokenLimit)
	assert.Equal(t, 2, cfg.Workers.PoolSize)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.TaskExecution)
}

func TestValidate(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	valid := func(t *testing.T) *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad http port", func(c *Config) { c.HTTPPort = 0 }, "invalid HTTP port"},
		{"missing api key", func(c *Config) { c.LLM.APIKey = "" }, "API key is required"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "gemini" }, "unsupported LLM provider"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "postgres" }, "invalid storage backend"},
		{"unknown events", func(c *Config) { c.Events.Backend = "kafka" }, "invalid events backend"},
		{"redis without addr", func(c *Config) { c.Events.Backend = "redis"; c.Redis.Addr = "" }, "redis address"},
		{"no workers", func(c *Config) { c.Workers.PoolSize = 0 }, "pool size"},
		{"zero budget", func(c *Config) { c.TokenLimit = 0 }, "token limit"},
		{"negative timeout", func(c *Config) { c.Timeouts.Shutdown = -time.Second }, "timeouts"},
		{"unknown exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }, "tracing exporter"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_order: [decompose, " generate ", extract]
languages:
  execute: [python, py, python3]
`), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"decompose", "generate", "extract"}, p.DefaultOrder)
	assert.Equal(t, []string{"python", "py", "python3"}, p.Languages["execute"])
}

func TestLoadProfileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadProfile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("default_order: [unterminated"), 0o644))
	_, err = LoadProfile(bad)
	assert.ErrorContains(t, err, "failed to parse")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("languages:\n  testgen: []\n"), 0o644))
	_, err = LoadProfile(empty)
	assert.ErrorContains(t, err, "empty language set")
}
