// Package config loads runtime settings from a YAML file with defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level runtime configuration. Constructed once at process
// start and passed by pointer into every component.
type Config struct {
	// DBPath is the sqlite database file. ":memory:" is valid for tests.
	DBPath string `yaml:"db_path"`

	Ingest IngestConfig `yaml:"ingest"`
	Embed  EmbedConfig  `yaml:"embed"`
	Search SearchConfig `yaml:"search"`
}

// IngestConfig controls the analysis pipeline.
type IngestConfig struct {
	// MaxFileSizeMB: files above this are indexed but not parsed.
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
	// ContextLines is the symmetric window radius for parent chunks.
	ContextLines int `yaml:"context_lines"`
	// Workers caps parallel per-file extraction. 0 means NumCPU.
	Workers int `yaml:"workers"`
}

// EmbedConfig points at an OpenAI-compatible /embeddings endpoint.
type EmbedConfig struct {
	Endpoint    string `yaml:"endpoint"`
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
}

// SearchConfig holds retrieval defaults. Weights are per-request overridable.
type SearchConfig struct {
	TopK          int     `yaml:"top_k"`
	LexicalWeight float64 `yaml:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight"`
	GraphWeight   float64 `yaml:"graph_weight"`
	CacheSize     int     `yaml:"cache_size"`
	CacheTTLSecs  int     `yaml:"cache_ttl_secs"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DBPath: "codegraph.db",
		Ingest: IngestConfig{
			MaxFileSizeMB: 2,
			ContextLines:  10,
			Workers:       0,
		},
		Embed: EmbedConfig{
			Endpoint:    "http://localhost:11434/v1/embeddings",
			Model:       "nomic-embed-text",
			Dimension:   768,
			BatchSize:   32,
			Concurrency: 4,
		},
		Search: SearchConfig{
			TopK:          10,
			LexicalWeight: 0.3,
			VectorWeight:  0.5,
			GraphWeight:   0.2,
			CacheSize:     256,
			CacheTTLSecs:  300,
		},
	}
}

// Load reads a YAML config file, layering it over defaults. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
