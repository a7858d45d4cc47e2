package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/guilhermexp/kasane/internal/models"
	"go.uber.org/zap"
)

type searchRequest struct {
	Query   string               `json:"query"`
	Options models.SearchOptions `json:"options"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Bool("semantic", req.Options.SemanticSearch))
	results, err := s.engine.Search(r.Context(), req.Query, req.Options)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []models.ScoredEntry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"results": results, "count": len(results)})
}

type vectorSearchRequest struct {
	Query string `json:"query"`
	TopN  int    `json:"topN"`
}

func (s *Server) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	var req vectorSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	results, err := s.pile.VectorSearch(r.Context(), req.Query, req.TopN)
	if err != nil {
		s.logger.Error("vector search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []models.ScoredEntry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"results": results, "count": len(results)})
}

type contextRequest struct {
	Message string                `json:"message"`
	History []models.ChatTurn     `json:"history"`
	Memory  *models.MemoryContext `json:"memory,omitempty"`
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.respondError(w, http.StatusBadRequest, "message is required")
		return
	}
	rc := s.engine.BuildContext(r.Context(), req.Message, req.History, req.Memory)
	s.respondJSON(w, http.StatusOK, rc)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries := s.pile.Get()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "count": len(entries)})
}

type entryRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleSyncEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	s.logger.Debug("sync entry request", zap.String("path", req.Path))
	if err := s.pile.Update(r.Context(), req.Path); err != nil {
		var readErr *models.EntryReadError
		if errors.As(err, &readErr) {
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("sync entry failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"path": req.Path, "status": "indexed"})
}

func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		var req entryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Path != "" {
			path = req.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	s.logger.Debug("remove entry request", zap.String("path", path))
	if err := s.pile.Remove(r.Context(), path); err != nil {
		s.logger.Error("remove entry failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"path": path, "status": "removed"})
}

// handleRegenerate kicks off embedding regeneration in the background.
// The job id is claimed before this returns, so concurrent requests get
// at most one started job; progress is visible through the status
// endpoint's regenJob field.
func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	job, err := s.pile.StartRegeneration()
	if err != nil {
		s.respondJSON(w, http.StatusConflict, map[string]string{"status": "running", "job": s.pile.RegenJob()})
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started", "job": job})
}

type threadsTextRequest struct {
	Paths []string `json:"paths"`
}

func (s *Server) handleThreadsText(w http.ResponseWriter, r *http.Request) {
	var req threadsTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Paths) == 0 {
		s.respondError(w, http.StatusBadRequest, "paths is required")
		return
	}
	texts := s.pile.GetThreadsAsText(req.Paths)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"texts": texts})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.pile.Status()
	resp := map[string]interface{}{
		"entries":      status.Entries,
		"threads":      status.Threads,
		"vectors":      status.Vectors,
		"vector_ready": status.VectorReady,
		"embedding":    map[string]interface{}{"model": status.EmbeddingModel, "dimensions": status.Dimensions},
	}
	if status.RegenJob != "" {
		resp["regen_job"] = status.RegenJob
	}
	if stale := s.pile.StaleModel(); stale != nil {
		resp["stale_model"] = stale.Error()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
