// Package config holds vecrag's configuration: a YAML file overridden by
// VECRAG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hubenschmidt/go-vecrag/llm"
	"github.com/hubenschmidt/go-vecrag/vector"
)

type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Collection CollectionConfig `koanf:"collection"`
	Embedding  ProviderConfig   `koanf:"embedding"`
	Generation ProviderConfig   `koanf:"generation"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Logging    LoggingConfig    `koanf:"logging"`
	Server     ServerConfig     `koanf:"server"`
}

type DatabaseConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

type CollectionConfig struct {
	Name      string `koanf:"name"`
	Dimension int    `koanf:"dimension"`
	Metric    string `koanf:"metric"`
}

// ProviderConfig configures an embedding or generation provider. The API
// key comes from APIKey, or else from the variable named by APIKeyEnv.
type ProviderConfig struct {
	Provider    string        `koanf:"provider"`
	Model       string        `koanf:"model"`
	BaseURL     string        `koanf:"base_url"`
	APIKey      Secret        `koanf:"api_key"`
	APIKeyEnv   string        `koanf:"api_key_env"`
	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
}

type RetrievalConfig struct {
	TopK              int           `koanf:"top_k"`
	QuotaPolicy       string        `koanf:"quota_policy"` // skip | abort
	Concurrency       int           `koanf:"concurrency"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	CallTimeout       time.Duration `koanf:"call_timeout"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json | console
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Default returns a configuration with every default applied and no DSN.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// defaultKeyEnv is the conventional key variable per provider.
var defaultKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

func applyDefaults(cfg *Config) {
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = os.Getenv("DATABASE_URL")
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 25
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 10 * time.Second
	}

	if cfg.Collection.Name == "" {
		cfg.Collection.Name = "documents"
	}
	if cfg.Collection.Dimension == 0 {
		cfg.Collection.Dimension = 768
	}
	if cfg.Collection.Metric == "" {
		cfg.Collection.Metric = string(vector.MetricL2)
	}

	applyProviderDefaults(&cfg.Embedding)
	applyProviderDefaults(&cfg.Generation)

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.QuotaPolicy == "" {
		cfg.Retrieval.QuotaPolicy = "skip"
	}
	if cfg.Retrieval.Concurrency == 0 {
		cfg.Retrieval.Concurrency = 1
	}
	if cfg.Retrieval.CallTimeout == 0 {
		cfg.Retrieval.CallTimeout = 30 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
}

func applyProviderDefaults(p *ProviderConfig) {
	if p.Provider == "" {
		p.Provider = "gemini"
	}
	p.Provider = strings.ToLower(p.Provider)
	if p.APIKeyEnv == "" {
		p.APIKeyEnv = defaultKeyEnv[p.Provider]
	}
	if p.Timeout == 0 {
		p.Timeout = 60 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database dsn is required (database.dsn, VECRAG_DATABASE_DSN or DATABASE_URL)")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("invalid database max_conns: %d", c.Database.MaxConns)
	}

	if err := vector.ValidateCollectionName(c.Collection.Name); err != nil {
		return err
	}
	if c.Collection.Dimension <= 0 {
		return fmt.Errorf("invalid collection dimension: %d (must be positive)", c.Collection.Dimension)
	}
	if _, err := vector.ParseMetric(c.Collection.Metric); err != nil {
		return err
	}

	switch c.Embedding.Provider {
	case "openai", "gemini", "ollama":
	default:
		return fmt.Errorf("invalid embedding provider: %q (must be openai, gemini or ollama)", c.Embedding.Provider)
	}
	switch c.Generation.Provider {
	case "openai", "gemini", "ollama", "anthropic":
	default:
		return fmt.Errorf("invalid generation provider: %q", c.Generation.Provider)
	}

	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("invalid retrieval top_k: %d (must be positive)", c.Retrieval.TopK)
	}
	switch c.Retrieval.QuotaPolicy {
	case "skip", "abort":
	default:
		return fmt.Errorf("invalid retrieval quota_policy: %q (must be skip or abort)", c.Retrieval.QuotaPolicy)
	}
	if c.Retrieval.Concurrency < 1 {
		return fmt.Errorf("invalid retrieval concurrency: %d (must be >= 1)", c.Retrieval.Concurrency)
	}
	if c.Retrieval.RequestsPerSecond < 0 {
		return errors.New("retrieval requests_per_second cannot be negative")
	}
	if c.Retrieval.CallTimeout <= 0 {
		return errors.New("retrieval call_timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q (must be json or console)", c.Logging.Format)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	return nil
}

// ResolvedAPIKey returns the explicit key or the one found in APIKeyEnv.
func (p ProviderConfig) ResolvedAPIKey() string {
	if p.APIKey.IsSet() {
		return p.APIKey.Value()
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// LLM converts to the provider package's configuration.
func (p ProviderConfig) LLM() llm.Config {
	return llm.Config{
		Provider:    p.Provider,
		Model:       p.Model,
		BaseURL:     p.BaseURL,
		APIKey:      p.ResolvedAPIKey(),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Timeout:     p.Timeout,
	}
}

// VectorOptions converts database settings to store options.
func (d DatabaseConfig) VectorOptions() vector.Options {
	return vector.Options{
		MaxConns:        d.MaxConns,
		MinConns:        d.MinConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnectTimeout:  d.ConnectTimeout,
	}
}
