// Package config loads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the runtime settings of the agent engine. Values are read
// from QACHATBOT_* environment variables.
type Config struct {
	// Model provider settings.
	ModelProvider string `envconfig:"MODEL_PROVIDER" default:"openai"`
	ModelName     string `envconfig:"MODEL_NAME" default:"gpt-4o-mini"`
	APIKey        string `envconfig:"API_KEY"`
	BaseURL       string `envconfig:"BASE_URL"`

	// Embedding settings.
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDims  int    `envconfig:"EMBEDDING_DIMS" default:"1536"`

	// Graph execution.
	MaxSteps int `envconfig:"MAX_STEPS" default:"200"`

	// Summarizer thresholds.
	BufferLimit int `envconfig:"BUFFER_LIMIT" default:"40"`
	BufferMin   int `envconfig:"BUFFER_MIN" default:"10"`

	// Storage.
	SQLitePath string `envconfig:"SQLITE_PATH" default:"qachatbot.db"`

	// Logging.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("qachatbot", &cfg); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return &cfg, nil
}
