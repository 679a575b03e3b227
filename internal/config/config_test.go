package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.TopK != 10 {
		t.Errorf("default top_k = %d, want 10", cfg.Search.TopK)
	}
	if cfg.Ingest.ContextLines != 10 {
		t.Errorf("default context_lines = %d, want 10", cfg.Ingest.ContextLines)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
db_path: /tmp/graph.db
search:
  top_k: 25
  vector_weight: 0.7
embed:
  model: text-embedding-3-small
  dimension: 1536
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/graph.db" {
		t.Errorf("db_path = %q", cfg.DBPath)
	}
	if cfg.Search.TopK != 25 {
		t.Errorf("top_k = %d, want 25", cfg.Search.TopK)
	}
	if cfg.Search.VectorWeight != 0.7 {
		t.Errorf("vector_weight = %v, want 0.7", cfg.Search.VectorWeight)
	}
	if cfg.Embed.Dimension != 1536 {
		t.Errorf("dimension = %d, want 1536", cfg.Embed.Dimension)
	}
	// Untouched fields keep their defaults.
	if cfg.Search.LexicalWeight != 0.3 {
		t.Errorf("lexical_weight = %v, want 0.3", cfg.Search.LexicalWeight)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("db_path: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}
