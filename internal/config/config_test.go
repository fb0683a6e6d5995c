package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.NotNil(t, cfg)
	assert.NotEmpty(t, cfg.ListenAddr)
	assert.NotEmpty(t, cfg.DBPath)
	assert.NotEmpty(t, cfg.ModelChain)
	assert.NotEmpty(t, cfg.OllamaHost)
	assert.Positive(t, cfg.MaxImageSizeMB)
	assert.Positive(t, cfg.MaxImageDimension)
	assert.Positive(t, cfg.ModelTimeoutSec)
	assert.Positive(t, cfg.RetryBaseDelayMs)
}

func TestLoadCustomValues(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("DB_PATH", "/custom/meals.db")
	t.Setenv("MODEL_CHAIN", "anthropic:claude-sonnet-4-20250514,ollama:llava")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test123")
	t.Setenv("MAX_IMAGE_SIZE_MB", "5")
	t.Setenv("MODEL_MAX_RETRIES", "4")

	cfg := Load()

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "/custom/meals.db", cfg.DBPath)
	assert.Equal(t, "anthropic:claude-sonnet-4-20250514,ollama:llava", cfg.ModelChain)
	assert.Equal(t, "sk-test123", cfg.AnthropicAPIKey)
	assert.Equal(t, 5, cfg.MaxImageSizeMB)
	assert.Equal(t, 4, cfg.ModelMaxRetries)
}

func TestLoadIgnoresMalformedInts(t *testing.T) {
	t.Setenv("MAX_IMAGE_SIZE_MB", "ten")

	cfg := Load()

	assert.Equal(t, 10, cfg.MaxImageSizeMB)
}
