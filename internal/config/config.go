// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/giantswarm/strategy-eval/internal/store"
)

type LlmConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    *float64
	EmbeddingModel string
	Stream         bool
}

type StoreConfig struct {
	// Driver is any name store.ParseDriver accepts. Empty disables the store.
	Driver string
	DSN    string
}

type Config struct {
	LogLevel string
	Llm      LlmConfig
	Store    StoreConfig
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Llm: LlmConfig{
			BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:         getEnv("OPENAI_API_KEY", os.Getenv("API_KEY")),
			Model:          getEnv("LLM_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", "")),
			DSN:    getEnv("DB_DSN", ""),
		},
	}

	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid LLM_TEMPERATURE %q: %w", v, err)
		}
		cfg.Llm.Temperature = &t
	}
	if v := os.Getenv("LLM_STREAM"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LLM_STREAM %q: %w", v, err)
		}
		cfg.Llm.Stream = b
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	if c.Store.Driver != "" {
		if _, err := store.ParseDriver(c.Store.Driver); err != nil {
			return fmt.Errorf("DB_DRIVER must be sqlite or postgres: %w", err)
		}
	}
	if t := c.Llm.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2")
	}
	return nil
}

// StoreEnabled reports whether results should be persisted to a database.
func (c *Config) StoreEnabled() bool {
	return c.Store.Driver != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
