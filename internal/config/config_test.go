package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // no config file in play

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "https://integrate.api.nvidia.com/v1", cfg.BaseURL)
	assert.Equal(t, "z-ai/glm4.7", cfg.Model)
	assert.InDelta(t, 0.4, cfg.Temperature, 1e-9)
	assert.Equal(t, 12, cfg.MaxFiles)
	assert.Equal(t, 1500, cfg.MaxFileTokens)
	assert.Equal(t, 4500, cfg.MaxTotalTokens)
	assert.Equal(t, 40, cfg.MaxConvoMessages)
	assert.Equal(t, 4096, cfg.MaxResponseTokens)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1500*time.Millisecond, cfg.RetryDelay)
	assert.True(t, cfg.BackupOnWrite)
	assert.True(t, cfg.DiffPreview)
	assert.NotEmpty(t, cfg.SystemPrompt)
	assert.Contains(t, cfg.DefaultExtensions, "*.py")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PATCHPILOT_MODEL", "meta/llama-3.3-70b")
	t.Setenv("PATCHPILOT_MAX_TOTAL_TOKENS", "9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "meta/llama-3.3-70b", cfg.Model)
	assert.Equal(t, 9000, cfg.MaxTotalTokens)
}

func TestLoadLegacyEnvNames(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-test-1234")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:8000/v1")
	t.Setenv("AI_MODEL", "legacy-model")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234", cfg.APIKey)
	assert.Equal(t, "http://localhost:8000/v1", cfg.BaseURL)
	assert.Equal(t, "legacy-model", cfg.Model)
}

func TestMaskedAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"empty", "", "(not set)"},
		{"short", "sk-short", "****"},
		{"long", "nvapi-0123456789abcdef0123456789", "nvapi-01...23456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{APIKey: tt.key}
			assert.Equal(t, tt.expected, cfg.MaskedAPIKey())
		})
	}
}
