package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8184
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/index.db"
	}
	if cfg.Storage.LexicalIndexPath == "" {
		cfg.Storage.LexicalIndexPath = "./data/lexical.bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "./data/embeddings.bin"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.BaseURL == "" {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.BaseURL = "https://api.openai.com/v1"
		default:
			cfg.Embedding.BaseURL = "http://127.0.0.1:11434"
		}
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.Model = "text-embedding-3-small"
		default:
			cfg.Embedding.Model = "mxbai-embed-large"
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.Dimensions = 1536
		default:
			cfg.Embedding.Dimensions = 1024
		}
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Retrieval.RelevanceFloor == 0 {
		cfg.Retrieval.RelevanceFloor = 0.12
	}
	if cfg.Retrieval.TopN == 0 {
		cfg.Retrieval.TopN = 24
	}
	if cfg.Retrieval.MaxContextEntries == 0 {
		cfg.Retrieval.MaxContextEntries = 12
	}
	if cfg.Retrieval.MaxEntryChars == 0 {
		cfg.Retrieval.MaxEntryChars = 1500
	}
	if cfg.Retrieval.MaxTotalContextChars == 0 {
		cfg.Retrieval.MaxTotalContextChars = 12000
	}
	if cfg.Retrieval.MaxQueryChars == 0 {
		cfg.Retrieval.MaxQueryChars = 2000
	}
	if cfg.Retrieval.HistoryWindow == 0 {
		cfg.Retrieval.HistoryWindow = 3
	}
	if cfg.Retrieval.MemorySectionMaxChars == 0 {
		cfg.Retrieval.MemorySectionMaxChars = 5000
	}
	if cfg.Retrieval.LatestThreadsCount == 0 {
		cfg.Retrieval.LatestThreadsCount = 10
	}
	if cfg.Search.TitleBoost == 0 {
		cfg.Search.TitleBoost = 3.0
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 50
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 200
	}
}
