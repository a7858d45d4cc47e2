// Package server provides the HTTP API for Kasane.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/guilhermexp/kasane/internal/config"
	"github.com/guilhermexp/kasane/internal/pile"
	"github.com/guilhermexp/kasane/internal/retrieval"
	"go.uber.org/zap"
)

// Server is the HTTP server for the Kasane API.
type Server struct {
	pile   *pile.Pile
	engine *retrieval.Engine
	config *config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(p *pile.Pile, engine *retrieval.Engine, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		pile:   p,
		engine: engine,
		config: cfg,
		logger: logger,
	}
}

// Router builds the HTTP routing table with the standard middleware
// stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/vector-search", s.handleVectorSearch)
	r.Post("/api/v1/context", s.handleContext)
	r.Get("/api/v1/entries", s.handleListEntries)
	r.Post("/api/v1/entries/sync", s.handleSyncEntry)
	r.Delete("/api/v1/entries", s.handleRemoveEntry)
	r.Post("/api/v1/regenerate", s.handleRegenerate)
	r.Post("/api/v1/threads/text", s.handleThreadsText)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
