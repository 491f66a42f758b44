// Package config loads engine configuration from YAML with environment
// variable overrides. Precedence: defaults, then file, then environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider: "ollama", "openai", or "" (embeddings disabled).
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Dims     int    `yaml:"dims"`
}

// LLMConfig configures the chat-completions client used for extraction,
// theme synthesis, and the sufficiency verifier.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// ClusterConfig controls thematic clustering.
type ClusterConfig struct {
	// SimilarityThreshold is τ: a unit joins the nearest cluster when its
	// cosine similarity to the centroid is at least this value.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// RetrievalConfig controls the recall pipeline.
type RetrievalConfig struct {
	TopK        int `yaml:"top_k"`
	TopClusters int `yaml:"top_clusters"`
	MaxEpisodes int `yaml:"max_episodes"`
	RRFK        int `yaml:"rrf_k"`
	MaxRewrites int `yaml:"max_rewrites"`
}

// Config is the full engine configuration.
type Config struct {
	DBPath    string          `yaml:"db_path"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DBPath: filepath.Join(home, ".evermemo", "memory.db"),
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			Dims:     768,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Cluster: ClusterConfig{SimilarityThreshold: 0.70},
		Retrieval: RetrievalConfig{
			TopK:        10,
			TopClusters: 5,
			MaxEpisodes: 8,
			RRFK:        60,
			MaxRewrites: 3,
		},
	}
}

// Load reads the config file at path (optional) and applies environment
// overrides. An empty path skips the file step.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Cluster.SimilarityThreshold < 0 || c.Cluster.SimilarityThreshold > 1 {
		return fmt.Errorf("cluster.similarity_threshold must be in [0,1], got %g", c.Cluster.SimilarityThreshold)
	}
	if c.Retrieval.RRFK < 1 {
		return fmt.Errorf("retrieval.rrf_k must be positive, got %d", c.Retrieval.RRFK)
	}
	if c.Retrieval.MaxRewrites < 0 {
		return fmt.Errorf("retrieval.max_rewrites must not be negative, got %d", c.Retrieval.MaxRewrites)
	}
	if c.Embedding.Provider != "" && c.Embedding.Dims <= 0 {
		return fmt.Errorf("embedding.dims must be positive, got %d", c.Embedding.Dims)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setStr(&cfg.DBPath, "EVERMEMO_DB")
	setStr(&cfg.Embedding.Provider, "EVERMEMO_EMBED_PROVIDER")
	setStr(&cfg.Embedding.Model, "EVERMEMO_EMBED_MODEL")
	setStr(&cfg.Embedding.BaseURL, "EVERMEMO_EMBED_URL")
	setInt(&cfg.Embedding.Dims, "EVERMEMO_EMBED_DIMS")
	setStr(&cfg.LLM.BaseURL, "EVERMEMO_LLM_URL")
	setStr(&cfg.LLM.Model, "EVERMEMO_LLM_MODEL")
	setStr(&cfg.LLM.APIKey, "EVERMEMO_LLM_KEY")
	if cfg.LLM.APIKey == "" {
		setStr(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	}
	if cfg.Embedding.APIKey == "" {
		setStr(&cfg.Embedding.APIKey, "OPENAI_API_KEY")
	}
}
