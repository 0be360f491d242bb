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
	path := filepath.Join(t.TempDir(), "finsight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvAnthropicAPIKey, "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 2, cfg.Engine.MaxRetriesPerStep)
	assert.Equal(t, 1, cfg.Engine.MaxReplans)
	assert.Equal(t, 50, cfg.Engine.MaxGraphSteps)
	assert.Equal(t, 60*time.Second, cfg.Engine.CallTimeout)
	assert.Equal(t, 256*1024, cfg.Engine.MaxResultBytes)
	assert.False(t, cfg.Engine.WipeResultsOnReplan)
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: openai
  model: gpt-4o
  api_key: file-key
engine:
  max_retries_per_step: 3
  call_timeout: 90s
queue:
  worker_count: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "file-key", cfg.LLM.APIKey)
	assert.Equal(t, 3, cfg.Engine.MaxRetriesPerStep)
	assert.Equal(t, 90*time.Second, cfg.Engine.CallTimeout)
	assert.Equal(t, 2, cfg.Queue.WorkerCount)

	// Unset fields still come from defaults.
	assert.Equal(t, 1, cfg.Engine.MaxReplans)
	assert.Equal(t, 100, cfg.Queue.QueueSize)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
}

func TestLoadExpandsEnvTemplates(t *testing.T) {
	t.Setenv("TEST_FINSIGHT_KEY", "from-env")
	path := writeConfig(t, `
llm:
  api_key: "{{.TEST_FINSIGHT_KEY}}"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := writeConfig(t, "llm: [unclosed")
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(*Config) {}, ""},
		{"bad provider", func(c *Config) { c.LLM.Provider = "gemini" }, "llm.provider"},
		{"negative retries", func(c *Config) { c.Engine.MaxRetriesPerStep = -1 }, "max_retries_per_step"},
		{"zero graph steps", func(c *Config) { c.Engine.MaxGraphSteps = 0 }, "max_graph_steps"},
		{"tiny result cap", func(c *Config) { c.Engine.MaxResultBytes = 16 }, "max_result_bytes"},
		{"zero workers", func(c *Config) { c.Queue.WorkerCount = 0 }, "worker_count"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidValue)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestExpandEnvLeavesDollarSignsAlone(t *testing.T) {
	in := []byte(`pattern: "^secret.*$"`)
	assert.Equal(t, in, ExpandEnv(in))
}
