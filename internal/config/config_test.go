package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-sonnet-4", cfg.Model)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, 100000, cfg.ContextBudget)
	assert.Equal(t, 10, cfg.MaxIterations)

	assert.True(t, cfg.Tools.Enabled)
	assert.False(t, cfg.Tools.Commands.Enabled)
	assert.True(t, cfg.Tools.Commands.Confirm)
	assert.Equal(t, int64(10*1024*1024), cfg.Tools.MaxFileSize)

	assert.Equal(t, "duckduckgo", cfg.Search.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestConfigValidate(t *testing.T) {
	t.Run("no credentials", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no credentials")
	})

	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Credentials = []string{"sk-ant-REDACTED"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("invalid provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Credentials = []string{"sk-ant-REDACTED"}
		cfg.Provider = "gemini"
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty credential entry", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Credentials = []string{"sk-ant-REDACTED", "  "}
		assert.Error(t, cfg.Validate())
	})

	t.Run("brave without key", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Credentials = []string{"sk-ant-REDACTED"}
		cfg.Search.Mode = "brave"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "brave")
	})

	t.Run("bad tool server address", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Credentials = []string{"sk-ant-REDACTED"}
		cfg.Tools.Servers = []string{"http://localhost:9000"}
		assert.Error(t, cfg.Validate())
	})
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Credentials = []string{"sk-ant-REDACTED"}
	cfg.Search.BraveKey = "BSAsecret"

	s := cfg.String()
	assert.NotContains(t, s, "supersecret")
	assert.NotContains(t, s, "BSAsecret")
	assert.Contains(t, s, "[REDACTED]")
}
