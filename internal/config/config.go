package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the assistant service.
// Environment variables are parsed from the ANKICHAT_ prefix.
// Example: ANKICHAT_HTTP_PORT, ANKICHAT_OPENAI_API_KEY.
type Config struct {
	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8077"`

	// AnkiConnect endpoint
	AnkiConnectURL string        `envconfig:"ANKI_CONNECT_URL" default:"http://127.0.0.1:8765"`
	AnkiTimeout    time.Duration `envconfig:"ANKI_TIMEOUT" default:"30s"`

	// Language model
	OpenAIAPIKey string        `envconfig:"OPENAI_API_KEY" required:"true"`
	LLMModel     string        `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMTimeout   time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`
	// Minimum delay between consecutive model calls inside one preview batch.
	LLMCallDelay time.Duration `envconfig:"LLM_CALL_DELAY" default:"250ms"`

	// Card listing
	MaxListLimit     int `envconfig:"MAX_LIST_LIMIT" default:"10"`
	DefaultListLimit int `envconfig:"DEFAULT_LIST_LIMIT" default:"10"`

	// Compaction
	MaxCompactLimit     int           `envconfig:"MAX_COMPACT_LIMIT" default:"50"`
	DefaultCompactLimit int           `envconfig:"DEFAULT_COMPACT_LIMIT" default:"30"`
	DefaultPreviewCount int           `envconfig:"DEFAULT_PREVIEW_COUNT" default:"5"`
	TokenTTL            time.Duration `envconfig:"TOKEN_TTL" default:"10m"`
	BackupSuffix        string        `envconfig:"BACKUP_SUFFIX" default:"_Original"`
	MarkerTag           string        `envconfig:"MARKER_TAG" default:"compact_examples"`

	// Health monitor
	HealthProbeInterval time.Duration `envconfig:"HEALTH_PROBE_INTERVAL" default:"30s"`
}

// Validate rejects values the rest of the system relies on being sane.
func (c *Config) Validate() error {
	if c.MaxListLimit < 1 {
		return fmt.Errorf("MAX_LIST_LIMIT must be >= 1, got %d", c.MaxListLimit)
	}
	if c.MaxCompactLimit < 1 {
		return fmt.Errorf("MAX_COMPACT_LIMIT must be >= 1, got %d", c.MaxCompactLimit)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.BackupSuffix == "" {
		return fmt.Errorf("BACKUP_SUFFIX must not be empty")
	}
	if c.MarkerTag == "" {
		return fmt.Errorf("MARKER_TAG must not be empty")
	}
	return nil
}

// New creates a Config by parsing ANKICHAT_-prefixed environment variables.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("ANKICHAT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Str("anki_connect_url", cfg.AnkiConnectURL).
		Str("llm_model", cfg.LLMModel).
		Int("max_list_limit", cfg.MaxListLimit).
		Int("max_compact_limit", cfg.MaxCompactLimit).
		Dur("token_ttl", cfg.TokenTTL).
		Str("marker_tag", cfg.MarkerTag).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config with defaults suitable for unit tests.
func NewForTesting() *Config {
	return &Config{
		HTTPPort:            8077,
		AnkiConnectURL:      "http://127.0.0.1:8765",
		AnkiTimeout:         5 * time.Second,
		OpenAIAPIKey:        "test-key",
		LLMModel:            "gpt-4o-mini",
		LLMTimeout:          5 * time.Second,
		LLMCallDelay:        0,
		MaxListLimit:        10,
		DefaultListLimit:    10,
		MaxCompactLimit:     50,
		DefaultCompactLimit: 30,
		DefaultPreviewCount: 5,
		TokenTTL:            10 * time.Minute,
		BackupSuffix:        "_Original",
		MarkerTag:           "compact_examples",
		HealthProbeInterval: 30 * time.Second,
	}
}
