// Package config provides configuration loading and structs for the kasane engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Journal   JournalConfig   `yaml:"journal"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// JournalConfig points at the journal ("pile") being indexed.
type JournalConfig struct {
	// Root is the corpus root: the directory holding entry files.
	Root string `yaml:"root"`
}

// StorageConfig holds paths for the persisted index snapshot and indices.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	LexicalIndexPath string `yaml:"lexical_index_path"`
	VectorIndexPath  string `yaml:"vector_index_path"`
}

// EmbeddingConfig holds settings for the external embedding backend.
type EmbeddingConfig struct {
	// Provider selects the backend: "ollama" or "openai".
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key
	// (OpenAI-compatible backends only).
	APIKeyEnv      string `yaml:"api_key_env"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CacheSize      int    `yaml:"cache_size"`
}

// RetrievalConfig holds the context-assembly tunables. The floor and
// budgets are calibrated constants, not derived values.
type RetrievalConfig struct {
	// RelevanceFloor is the minimum normalized similarity for a hit to
	// be used as context.
	RelevanceFloor float64 `yaml:"relevance_floor"`
	// TopN is how many candidates vector search returns for assembly.
	TopN int `yaml:"top_n"`
	// MaxContextEntries caps surviving entries after the floor.
	MaxContextEntries int `yaml:"max_context_entries"`
	// MaxEntryChars caps each entry's rendered thread text.
	MaxEntryChars int `yaml:"max_entry_chars"`
	// MaxTotalContextChars caps the whole assembled context.
	MaxTotalContextChars int `yaml:"max_total_context_chars"`
	// MaxQueryChars caps the retrieval query built from chat history.
	MaxQueryChars int `yaml:"max_query_chars"`
	// HistoryWindow is how many trailing user turns join the query.
	HistoryWindow int `yaml:"history_window"`
	// MemorySectionMaxChars caps each persistent-memory section.
	MemorySectionMaxChars int `yaml:"memory_section_max_chars"`
	// LatestThreadsCount is how many recent threads feed the chat digest.
	LatestThreadsCount int `yaml:"latest_threads_count"`
}

// SearchConfig holds interactive lexical search settings.
type SearchConfig struct {
	TitleBoost   float64 `yaml:"title_boost"`
	DefaultLimit int     `yaml:"default_limit"`
	MaxLimit     int     `yaml:"max_limit"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Journal.Root = expandPath(cfg.Journal.Root, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.LexicalIndexPath = expandPath(cfg.Storage.LexicalIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
