// Package main is the Kasane CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/guilhermexp/kasane/internal/config"
	"github.com/guilhermexp/kasane/internal/embedding"
	"github.com/guilhermexp/kasane/internal/lexical"
	"github.com/guilhermexp/kasane/internal/models"
	"github.com/guilhermexp/kasane/internal/pile"
	"github.com/guilhermexp/kasane/internal/retrieval"
	"github.com/guilhermexp/kasane/internal/server"
	"github.com/guilhermexp/kasane/internal/storage"
	"github.com/guilhermexp/kasane/internal/store"
	"github.com/guilhermexp/kasane/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kasane/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists it
// is used, so that "kasane server" from the project dir uses the project's
// config. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "load":
		runLoad()
	case "search":
		runSearch()
	case "context":
		runContext()
	case "regen":
		runRegen()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kasane version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	report, err := components.Pile.Load(context.Background())
	if err != nil {
		logger.Fatal("Failed to load journal", zap.Error(err))
	}
	logger.Info("journal loaded",
		zap.Int("indexed", report.Indexed),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("removed", report.Removed),
		zap.Int("skipped", report.Skipped),
	)
	if report.StaleModel != nil {
		logger.Warn("vector search disabled until embeddings regenerate",
			zap.Error(report.StaleModel))
	}

	srv := server.NewServer(components.Pile, components.Engine, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runLoad() {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	report, err := components.Pile.Load(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("indexed:   %d\n", report.Indexed)
	fmt.Printf("unchanged: %d\n", report.Unchanged)
	fmt.Printf("removed:   %d\n", report.Removed)
	fmt.Printf("skipped:   %d\n", report.Skipped)
	if report.StaleModel != nil {
		fmt.Printf("stale embeddings: %v (run \"kasane regen\")\n", report.StaleModel)
	}
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8184", "server URL (empty = use direct storage when server is not running)")
	semantic := fs.Bool("semantic", false, "route the query to the vector index")
	highlighted := fs.Bool("highlighted", false, "only highlighted entries")
	attachments := fs.Bool("attachments", false, "only entries with attachments")
	sortOrder := fs.String("sort", "relevance", "sort order: relevance, mostRecent, or oldest")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kasane search [flags] <query>")
		os.Exit(1)
	}
	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		fmt.Println("Usage: kasane search [flags] <query>")
		os.Exit(1)
	}

	opts := models.SearchOptions{
		SemanticSearch:  *semantic,
		OnlyHighlighted: *highlighted,
		HasAttachments:  *attachments,
		SortOrder:       models.SortOrder(*sortOrder),
	}

	var results []models.ScoredEntry
	if *serverURL != "" {
		// Use HTTP API when server is running (avoids Bleve/SQLite lock conflict).
		res, err := searchViaHTTP(*serverURL, queryStr, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		results = res
	} else {
		components, logger := mustInitialize(*configPath)
		defer components.Close()
		defer logger.Sync()
		if _, err := components.Pile.Load(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
			os.Exit(1)
		}
		res, err := components.Engine.Search(context.Background(), queryStr, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		results = res
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if len(results) == 0 {
			fmt.Println("No results.")
			return
		}
		for i, r := range results {
			fmt.Printf("%2d. [%.3f] %s", i+1, r.Score, r.Ref)
			if r.Title != "" {
				fmt.Printf("  %s", r.Title)
			}
			fmt.Println()
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL, query string, opts models.SearchOptions) ([]models.ScoredEntry, error) {
	body, err := json.Marshal(map[string]interface{}{"query": query, "options": opts})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Results []models.ScoredEntry `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Results, nil
}

func runContext() {
	fs := flag.NewFlagSet("context", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8184", "server URL (empty = use direct storage)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kasane context [flags] <message>")
		os.Exit(1)
	}
	message := buildQuery(fs.Args())

	var rc *models.Context
	if *serverURL != "" {
		res, err := contextViaHTTP(*serverURL, message)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Context failed: %v\n", err)
			os.Exit(1)
		}
		rc = res
	} else {
		components, logger := mustInitialize(*configPath)
		defer components.Close()
		defer logger.Sync()
		if _, err := components.Pile.Load(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
			os.Exit(1)
		}
		rc = components.Engine.BuildContext(context.Background(), message, nil, nil)
	}
	fmt.Println(rc.Text)
}

func contextViaHTTP(serverURL, message string) (*models.Context, error) {
	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/context", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var rc models.Context
	if err := json.NewDecoder(resp.Body).Decode(&rc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &rc, nil
}

func runRegen() {
	fs := flag.NewFlagSet("regen", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8184", "server URL (empty = use direct storage)")
	_ = fs.Parse(os.Args[2:])

	if *serverURL != "" {
		resp, err := http.Post(*serverURL+"/api/v1/regenerate", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusAccepted {
			fmt.Fprintf(os.Stderr, "Regenerate failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Println("Regeneration started; poll status for progress.")
		return
	}

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()
	if _, err := components.Pile.Load(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
		os.Exit(1)
	}
	if err := components.Pile.RegenerateEmbeddings(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Regenerate failed: %v\n", err)
		os.Exit(1)
	}
	status := components.Pile.Status()
	fmt.Printf("Regenerated %d vectors with %s.\n", status.Vectors, status.EmbeddingModel)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8184", "server URL (empty = use direct storage)")
	_ = fs.Parse(os.Args[2:])

	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Status failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var raw map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(raw)
		return
	}

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()
	if _, err := components.Pile.Load(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
		os.Exit(1)
	}
	status := components.Pile.Status()
	fmt.Printf("entries:       %d\n", status.Entries)
	fmt.Printf("threads:       %d\n", status.Threads)
	fmt.Printf("vectors:       %d\n", status.Vectors)
	fmt.Printf("vector_ready:  %t\n", status.VectorReady)
	fmt.Printf("model:         %s (%d dims)\n", status.EmbeddingModel, status.Dimensions)
}

// Components holds initialized services.
type Components struct {
	Snapshot storage.Store
	Lexical  lexical.Index
	Pile     *pile.Pile
	Engine   *retrieval.Engine
}

func (c *Components) Close() {
	if c.Lexical != nil {
		_ = c.Lexical.Close()
	}
	if c.Snapshot != nil {
		_ = c.Snapshot.Close()
	}
}

func newEmbedder(cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	var inner embedding.Embedder
	switch cfg.Provider {
	case "ollama":
		inner = embedding.NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions, timeout)
	case "openai":
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("embedding: %s is not set", cfg.APIKeyEnv)
		}
		inner = embedding.NewOpenAIEmbedder(cfg.BaseURL, apiKey, cfg.Model, cfg.Dimensions, timeout)
	case "mock":
		inner = embedding.NewMockEmbedder(cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		return embedding.NewCached(inner, cfg.CacheSize), nil
	}
	return inner, nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	docs, err := store.NewFileStore(cfg.Journal.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal root: %w", err)
	}

	snapshot, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	lex, err := lexical.NewBleveIndex(cfg.Storage.LexicalIndexPath, cfg.Search.TitleBoost)
	if err != nil {
		_ = snapshot.Close()
		return nil, fmt.Errorf("failed to initialize lexical index: %w", err)
	}

	embedder, err := newEmbedder(&cfg.Embedding)
	if err != nil {
		_ = lex.Close()
		_ = snapshot.Close()
		return nil, err
	}

	p := pile.New(docs, snapshot, lex, embedder, pile.Config{
		VectorSnapshotPath: cfg.Storage.VectorIndexPath,
		EmbedTimeout:       time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
	}, pile.WithLogger(logger))

	engine := retrieval.NewEngine(p, &cfg.Retrieval, &cfg.Search, retrieval.WithLogger(logger))

	return &Components{
		Snapshot: snapshot,
		Lexical:  lex,
		Pile:     p,
		Engine:   engine,
	}, nil
}

// mustInitialize loads config, builds a logger, and wires components for
// direct (serverless) subcommands, exiting on failure.
func mustInitialize(configPath string) (*Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components, logger
}

func printUsage() {
	fmt.Println(`kasane - journal retrieval engine

Usage:
  kasane server [flags]            Start the HTTP server
  kasane load [flags]              Scan the journal and rebuild the indexes
  kasane search [flags] <query>    Search entries
  kasane context [flags] <message> Assemble a retrieval context for a message
  kasane regen [flags]             Regenerate all embeddings
  kasane status [flags]            Show index status
  kasane version                   Show version
  kasane help                      Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kasane/config.yaml)
  --server string    Server URL (default: http://localhost:8184). Use empty (--server "") for direct storage when the server is not running.

Search Flags:
  --semantic         Route the query to the vector index
  --highlighted      Only highlighted entries
  --attachments      Only entries with attachments
  --sort string      relevance, mostRecent, or oldest (default: relevance)
  --output string    text or json (default: text)

Examples:
  kasane server
  kasane load --config ./config.yaml
  kasane search "trip to lisbon"
  kasane search --semantic "times I felt stuck at work"
  kasane context "what did I write about my sister?"
  kasane regen
  kasane status`)
}
