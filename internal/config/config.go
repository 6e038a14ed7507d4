// Package config provides configuration loading for sheetctx.
//
// Configuration is read from an optional YAML file and overridden by
// SHEETCTX_* environment variables. Sections that belong to packages which
// import config themselves (logging, telemetry) are read through
// Source.Unmarshal so this package stays a leaf for them.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/sheetctx/internal/assembler"
	"github.com/fyrsmithlabs/sheetctx/internal/conversation"
	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
	"github.com/fyrsmithlabs/sheetctx/internal/embeddings"
	"github.com/fyrsmithlabs/sheetctx/internal/vectorstore"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete sheetctx configuration.
type Config struct {
	Assembler   assembler.Config          `koanf:"assembler"`
	DLP         dlp.Config                `koanf:"dlp"`
	Embeddings  EmbeddingsConfig          `koanf:"embeddings"`
	VectorStore vectorstore.ChromemConfig `koanf:"vectorstore"`
	Trim        conversation.TrimOptions  `koanf:"trim"`
	Server      ServerConfig              `koanf:"server"`
}

// EmbeddingsConfig selects the embedder used for sheet retrieval.
type EmbeddingsConfig struct {
	// Provider is "hash" (default, offline) or "tei".
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	Dimension int      `koanf:"dimension"`
	Timeout   Duration `koanf:"timeout"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// BodyLimit caps request bodies, e.g. "8M".
	BodyLimit string `koanf:"body_limit"`
	// RateLimit is requests per second per client IP on /api routes; zero
	// disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// Default returns the configuration used before file and env overrides.
func Default() *Config {
	cfg := &Config{
		Assembler: assembler.DefaultConfig(),
		DLP:       *dlp.DefaultConfig(),
		Embeddings: EmbeddingsConfig{
			Provider: "hash",
			Model:    "BAAI/bge-small-en-v1.5",
			BaseURL:  "http://localhost:8080",
			Timeout:  Duration(30 * time.Second),
		},
		Trim: conversation.TrimOptions{
			MaxTokens:              8000,
			ReserveForOutputTokens: 1000,
			SummaryTokens:          300,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9090,
			ShutdownTimeout: Duration(10 * time.Second),
			BodyLimit:       "8M",
		},
	}
	cfg.VectorStore.ApplyDefaults()
	return cfg
}

// ToProvider converts the section into the embeddings provider settings.
func (c EmbeddingsConfig) ToProvider() embeddings.ProviderConfig {
	return embeddings.ProviderConfig{
		Provider:  c.Provider,
		Model:     c.Model,
		BaseURL:   c.BaseURL,
		APIKey:    c.APIKey.Value(),
		Dimension: c.Dimension,
		Timeout:   c.Timeout.Duration(),
	}
}

// Validate validates the configuration and compiles DLP rules.
func (c *Config) Validate() error {
	c.Assembler.ApplyDefaults()
	if err := c.Assembler.Validate(); err != nil {
		return fmt.Errorf("assembler: %w", err)
	}
	if err := c.DLP.Validate(); err != nil {
		return fmt.Errorf("dlp: %w", err)
	}

	switch c.Embeddings.Provider {
	case "hash", "":
	case "tei":
		if c.Embeddings.BaseURL == "" {
			return fmt.Errorf("%w: embeddings.base_url is required for the tei provider", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown embeddings provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension < 0 {
		return fmt.Errorf("%w: embeddings.dimension must not be negative", ErrInvalidConfig)
	}

	c.VectorStore.ApplyDefaults()
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vectorstore: %w", err)
	}

	if c.Trim.MaxTokens < 0 || c.Trim.ReserveForOutputTokens < 0 || c.Trim.SummaryTokens < 0 {
		return fmt.Errorf("%w: trim token settings must not be negative", ErrInvalidConfig)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("%w: server.rate_limit and server.rate_burst must not be negative", ErrInvalidConfig)
	}
	return nil
}
