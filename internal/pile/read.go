package pile

import (
	"context"

	"go.uber.org/zap"

	"github.com/guilhermexp/kasane/internal/models"
)

// Get returns every entry's metadata ordered by creation time, newest
// first. The slice is a copy; callers may keep it across mutations.
func (p *Pile) Get() []models.Entry {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return sortedEntries(p.entries)
}

// Entry returns the metadata for one path.
func (p *Pile) Entry(path string) (models.Entry, bool) {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	e, ok := p.entries[path]
	if !ok {
		return models.Entry{}, false
	}
	return *e, true
}

// LexicalSearch runs keyword search and joins hits with entry metadata.
// Hits whose entry vanished between index and query are dropped.
func (p *Pile) LexicalSearch(query string, limit int) ([]models.ScoredEntry, error) {
	hits, err := p.lexical.Search(query, limit)
	if err != nil {
		return nil, err
	}
	return p.joinHits(hits), nil
}

// VectorSearch embeds the query and ranks threads by similarity. While
// vector search is disabled (stale model awaiting regeneration) or the
// query embedding fails, it returns an empty result so callers can
// degrade instead of erroring.
func (p *Pile) VectorSearch(ctx context.Context, query string, topN int) ([]models.ScoredEntry, error) {
	p.stateMu.RLock()
	vec := p.vec
	ready := p.vectorReady
	p.stateMu.RUnlock()
	if !ready || vec == nil || vec.Size() == 0 {
		return nil, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
	defer cancel()
	queryVec, err := p.embedder.Embed(embedCtx, query)
	if err != nil {
		p.logger.Warn("query embedding failed, returning no vector hits", zap.Error(err))
		return nil, nil
	}

	hits, err := vec.Query(queryVec, topN)
	if err != nil {
		return nil, err
	}
	return p.joinHits(hits), nil
}

// joinHits resolves hit refs against the entry map, preserving order.
func (p *Pile) joinHits(hits []models.SearchHit) []models.ScoredEntry {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	out := make([]models.ScoredEntry, 0, len(hits))
	for _, hit := range hits {
		entry, ok := p.entries[hit.Ref]
		if !ok {
			continue
		}
		out = append(out, models.ScoredEntry{Entry: *entry, Ref: hit.Ref, Score: hit.Score})
	}
	return out
}

// GetThreadAsText renders the thread rooted at path.
func (p *Pile) GetThreadAsText(path string) (string, error) {
	return p.docs.ThreadText(path)
}

// GetThreadsAsText renders each thread; unreadable threads yield an
// empty string at their position rather than failing the batch.
func (p *Pile) GetThreadsAsText(paths []string) []string {
	out := make([]string, len(paths))
	for i, path := range paths {
		text, err := p.docs.ThreadText(path)
		if err != nil {
			p.logger.Warn("thread text failed", zap.String("path", path), zap.Error(err))
			continue
		}
		out[i] = text
	}
	return out
}

// LatestThreads renders the n most recently created thread roots.
func (p *Pile) LatestThreads(n int) []string {
	if n <= 0 {
		return nil
	}
	var texts []string
	for _, entry := range p.Get() {
		if entry.IsReply {
			continue
		}
		text, err := p.docs.ThreadText(entry.Path)
		if err != nil {
			continue
		}
		texts = append(texts, text)
		if len(texts) == n {
			break
		}
	}
	return texts
}

// Status describes the coordinator's current state.
type Status struct {
	Entries        int    `json:"entries"`
	Threads        int    `json:"threads"`
	Vectors        int    `json:"vectors"`
	VectorReady    bool   `json:"vectorReady"`
	EmbeddingModel string `json:"embeddingModel"`
	Dimensions     int    `json:"dimensions"`
	RegenJob       string `json:"regenJob,omitempty"`
}

// Status returns index counts and vector availability.
func (p *Pile) Status() Status {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	threads := 0
	for _, e := range p.entries {
		if !e.IsReply {
			threads++
		}
	}
	var vecSize int
	if p.vec != nil {
		vecSize = p.vec.Size()
	}
	return Status{
		Entries:        len(p.entries),
		Threads:        threads,
		Vectors:        vecSize,
		VectorReady:    p.vectorReady,
		EmbeddingModel: p.embedder.Model(),
		Dimensions:     p.embedder.Dimensions(),
		RegenJob:       p.regenJob,
	}
}
