package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.Port != 8184 {
		t.Errorf("port: got %d", cfg.Server.Port)
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("provider: got %q", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Model != "mxbai-embed-large" || cfg.Embedding.Dimensions != 1024 {
		t.Errorf("embedding defaults: %q %d", cfg.Embedding.Model, cfg.Embedding.Dimensions)
	}
	if cfg.Retrieval.RelevanceFloor != 0.12 {
		t.Errorf("relevance floor: got %v", cfg.Retrieval.RelevanceFloor)
	}
	if cfg.Retrieval.TopN != 24 || cfg.Retrieval.MaxContextEntries != 12 {
		t.Errorf("retrieval caps: %d %d", cfg.Retrieval.TopN, cfg.Retrieval.MaxContextEntries)
	}
	if cfg.Retrieval.MaxEntryChars != 1500 || cfg.Retrieval.MaxTotalContextChars != 12000 {
		t.Errorf("char budgets: %d %d", cfg.Retrieval.MaxEntryChars, cfg.Retrieval.MaxTotalContextChars)
	}
	if cfg.Retrieval.MaxQueryChars != 2000 || cfg.Retrieval.HistoryWindow != 3 {
		t.Errorf("query shape: %d %d", cfg.Retrieval.MaxQueryChars, cfg.Retrieval.HistoryWindow)
	}
	if cfg.Search.TitleBoost != 3.0 {
		t.Errorf("title boost: got %v", cfg.Search.TitleBoost)
	}
}

func TestApplyDefaults_OpenAIProvider(t *testing.T) {
	cfg := &Config{}
	cfg.Embedding.Provider = "openai"
	ApplyDefaults(cfg)

	if cfg.Embedding.Model != "text-embedding-3-small" || cfg.Embedding.Dimensions != 1536 {
		t.Errorf("openai defaults: %q %d", cfg.Embedding.Model, cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("base url: got %q", cfg.Embedding.BaseURL)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  port: 9000
journal:
  root: ./journal
embedding:
  provider: ollama
  model: nomic-embed-text
  dimensions: 768
retrieval:
  relevance_floor: 0.2
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port: got %d", cfg.Server.Port)
	}
	if cfg.Embedding.Model != "nomic-embed-text" || cfg.Embedding.Dimensions != 768 {
		t.Errorf("embedding: %q %d", cfg.Embedding.Model, cfg.Embedding.Dimensions)
	}
	if cfg.Retrieval.RelevanceFloor != 0.2 {
		t.Errorf("floor override: got %v", cfg.Retrieval.RelevanceFloor)
	}
	// Unset values still get defaults.
	if cfg.Retrieval.TopN != 24 {
		t.Errorf("topN default: got %d", cfg.Retrieval.TopN)
	}
	// "./" paths resolve against the config directory.
	if cfg.Journal.Root != filepath.Join(dir, "journal") {
		t.Errorf("journal root: got %q", cfg.Journal.Root)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config")
	}
}
