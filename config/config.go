// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config holds everything needed to assemble an agent from the environment.
type Config struct {
	// ModelProvider selects the model backend: "anthropic" or "openai".
	ModelProvider string `envconfig:"MODEL_PROVIDER" default:"anthropic"`

	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	NewsAPIKey      string `envconfig:"NEWS_API_KEY"`

	// CharacterPath points at a JSON or YAML character file.
	CharacterPath string `envconfig:"CHARACTER_PATH"`

	// StorePath selects the SQLite database file; empty means the in-memory
	// store.
	StorePath string `envconfig:"STORE_PATH"`

	ConversationLength int `envconfig:"CONVERSATION_LENGTH" default:"32"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch strings.ToLower(c.ModelProvider) {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unsupported model provider %q", c.ModelProvider)
	}
	if c.ConversationLength <= 0 {
		return fmt.Errorf("conversation length must be positive, got %d", c.ConversationLength)
	}
	return nil
}

// SlogLevel maps the configured log level onto slog, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
