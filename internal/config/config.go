package config

import (
	"os"
	"strconv"
)

type Config struct {
	ListenAddr string
	DBPath     string
	PhotoPath  string
	LogLevel   string
	LogFile    string

	// ModelChain is the ranked model list, highest priority first, as
	// comma-separated backend:model pairs,
	// e.g. "openrouter:google/gemini-2.5-flash,ollama:llava".
	ModelChain        string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	AnthropicAPIKey   string
	OllamaHost        string

	MaxImageSizeMB    int
	MaxImageDimension int

	ModelTimeoutSec   int
	ModelMaxRetries   int
	RetryBaseDelayMs  int
	RetryMaxDelaySec  int
}

func Load() *Config {
	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		DBPath:     getEnv("DB_PATH", "/data/mealmetrics.db"),
		PhotoPath:  getEnv("PHOTO_LOCAL_PATH", "/data/photos"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFile:    getEnv("LOG_FILE", ""),

		ModelChain:        getEnv("MODEL_CHAIN", "openrouter:google/gemini-2.5-flash,openrouter:openai/gpt-4o-mini,ollama:llava"),
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", ""),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		OllamaHost:        getEnv("OLLAMA_HOST", "http://localhost:11434"),

		MaxImageSizeMB:    getEnvInt("MAX_IMAGE_SIZE_MB", 10),
		MaxImageDimension: getEnvInt("MAX_IMAGE_DIMENSION", 1024),

		ModelTimeoutSec:  getEnvInt("MODEL_TIMEOUT_SEC", 90),
		ModelMaxRetries:  getEnvInt("MODEL_MAX_RETRIES", 2),
		RetryBaseDelayMs: getEnvInt("RETRY_BASE_DELAY_MS", 500),
		RetryMaxDelaySec: getEnvInt("RETRY_MAX_DELAY_SEC", 15),
	}
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
