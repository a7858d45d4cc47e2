// Package retrieval converts queries into ranked hit lists and bounded
// context blocks for LLM prompting.
package retrieval

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/guilhermexp/kasane/internal/config"
	"github.com/guilhermexp/kasane/internal/lexical"
	"github.com/guilhermexp/kasane/internal/models"
)

// Coordinator is the slice of the index coordinator the retrieval
// engine needs.
type Coordinator interface {
	LexicalSearch(query string, limit int) ([]models.ScoredEntry, error)
	VectorSearch(ctx context.Context, query string, topN int) ([]models.ScoredEntry, error)
	GetThreadsAsText(paths []string) []string
	LatestThreads(n int) []string
}

// Engine routes queries to the right sub-index and applies the shared
// post-filters so results look the same regardless of source.
type Engine struct {
	coord  Coordinator
	cfg    *config.RetrievalConfig
	search *config.SearchConfig
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for degraded-path events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a retrieval engine over the coordinator.
func NewEngine(coord Coordinator, cfg *config.RetrievalConfig, search *config.SearchConfig, opts ...Option) *Engine {
	e := &Engine{coord: coord, cfg: cfg, search: search, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs an interactive search. Semantic queries go to the vector
// index, everything else to the lexical index; filters and sort order
// apply identically to both. An empty query returns no results.
func (e *Engine) Search(ctx context.Context, text string, opts models.SearchOptions) ([]models.ScoredEntry, error) {
	opts.Normalize()
	if len(lexical.Tokenize(text)) == 0 {
		return nil, nil
	}

	var (
		results []models.ScoredEntry
		err     error
	)
	if opts.SemanticSearch {
		results, err = e.coord.VectorSearch(ctx, text, e.search.DefaultLimit)
	} else {
		results, err = e.coord.LexicalSearch(text, e.search.DefaultLimit)
	}
	if err != nil {
		return nil, err
	}

	filtered := results[:0]
	for _, r := range results {
		if opts.OnlyHighlighted && !r.HasHighlight() {
			continue
		}
		if opts.HasAttachments && !r.HasAttachments() {
			continue
		}
		filtered = append(filtered, r)
	}

	switch opts.SortOrder {
	case models.SortMostRecent:
		sortByCreation(filtered, true)
	case models.SortOldest:
		sortByCreation(filtered, false)
	default:
		// Relevance order is the sub-index order, already deterministic.
	}
	return filtered, nil
}

// LatestThreadsDigest renders the most recent threads as one block for
// priming the chat conversation.
func (e *Engine) LatestThreadsDigest() string {
	threads := e.coord.LatestThreads(e.cfg.LatestThreadsCount)
	return joinBlocks(threads)
}

func sortByCreation(entries []models.ScoredEntry, newestFirst bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := entries[i].CreatedAt, entries[j].CreatedAt
		if !ti.Equal(tj) {
			if newestFirst {
				return ti.After(tj)
			}
			return ti.Before(tj)
		}
		return entries[i].Ref < entries[j].Ref
	})
}
