package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("QACHATBOT_MODEL_PROVIDER", "deepseek")
	t.Setenv("QACHATBOT_MODEL_NAME", "deepseek-chat")
	t.Setenv("QACHATBOT_MAX_STEPS", "77")
	t.Setenv("QACHATBOT_SQLITE_PATH", "/tmp/test.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "deepseek", cfg.ModelProvider)
	assert.Equal(t, "deepseek-chat", cfg.ModelName)
	assert.Equal(t, 77, cfg.MaxSteps)
	assert.Equal(t, "/tmp/test.db", cfg.SQLitePath)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QACHATBOT_MODEL_PROVIDER", "openai")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.ModelName)
	assert.Equal(t, 200, cfg.MaxSteps)
	assert.Equal(t, 40, cfg.BufferLimit)
	assert.Equal(t, 10, cfg.BufferMin)
	assert.Equal(t, "info", cfg.LogLevel)
}
