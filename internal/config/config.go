// Package config provides configuration loading for domainforge.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration struct. Values come from defaults, then
// the YAML file, then FORGE_* environment variables, in that order.
type Config struct {
	DBPath       string           `yaml:"db_path" envconfig:"DB_PATH"`
	Listen       string           `yaml:"listen" envconfig:"LISTEN"`
	Provider     ProviderConfig   `yaml:"provider"`
	Clustering   ClusteringConfig `yaml:"clustering"`
	Capture      CaptureConfig    `yaml:"capture"`
	FixedDomains []FixedDomain    `yaml:"fixed_domains"`
}

// ProviderConfig configures the embedding and generative-text endpoints.
type ProviderConfig struct {
	APIBase        string `yaml:"api_base" envconfig:"API_BASE"`
	APIKey         string `yaml:"api_key" envconfig:"API_KEY"`
	ChatModel      string `yaml:"chat_model" envconfig:"CHAT_MODEL"`
	EmbedModel     string `yaml:"embed_model" envconfig:"EMBED_MODEL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`
}

// Timeout returns the provider request timeout as a duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// ClusteringConfig holds pattern-detection defaults.
type ClusteringConfig struct {
	MinClusterSize      int     `yaml:"min_cluster_size" envconfig:"MIN_CLUSTER_SIZE"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" envconfig:"SIMILARITY_THRESHOLD"`
}

// CaptureConfig holds capture-side settings. ConfidenceThreshold is the
// cutoff below which the extraction layer hands turns to capture; it is
// published here so the extractor prompt and the capture surface agree.
type CaptureConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" envconfig:"CONFIDENCE_THRESHOLD"`
}

// FixedDomain describes a statically built record type. The synthesizer
// lists these in its prompt to discourage overlapping proposals.
type FixedDomain struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBPath: "domainforge.db",
		Listen: "127.0.0.1:8710",
		Provider: ProviderConfig{
			APIBase:        "https://api.openai.com/v1",
			ChatModel:      "gpt-4o-mini",
			EmbedModel:     "text-embedding-3-small",
			TimeoutSeconds: 120,
		},
		Clustering: ClusteringConfig{
			MinClusterSize:      3,
			SimilarityThreshold: 0.75,
		},
		Capture: CaptureConfig{
			ConfidenceThreshold: 0.8,
		},
		FixedDomains: []FixedDomain{
			{Name: "meals", Description: "Food and drink consumed, with portions and times"},
			{Name: "tasks", Description: "To-dos with due dates and completion state"},
			{Name: "contacts", Description: "People, their relationships and contact details"},
			{Name: "transactions", Description: "Money spent or received, with amounts and categories"},
		},
	}
}

// Load reads the YAML file at path (missing file is not an error) and applies
// FORGE_* environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := envconfig.Process("forge", cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Clustering.MinClusterSize < 2 {
		return fmt.Errorf("clustering.min_cluster_size must be at least 2, got %d", c.Clustering.MinClusterSize)
	}
	if c.Clustering.SimilarityThreshold <= 0 || c.Clustering.SimilarityThreshold > 1 {
		return fmt.Errorf("clustering.similarity_threshold must be in (0,1], got %v", c.Clustering.SimilarityThreshold)
	}
	if c.Capture.ConfidenceThreshold < 0 || c.Capture.ConfidenceThreshold > 1 {
		return fmt.Errorf("capture.confidence_threshold must be in [0,1], got %v", c.Capture.ConfidenceThreshold)
	}
	return nil
}
