// Package pile implements the index coordinator for one journal.
//
// A Pile owns the authoritative entry metadata map and is the only
// writer to the lexical and vector sub-indexes. Mutations are
// serialized; reads run concurrently against a consistent state.
package pile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/guilhermexp/kasane/internal/embedding"
	"github.com/guilhermexp/kasane/internal/lexical"
	"github.com/guilhermexp/kasane/internal/models"
	"github.com/guilhermexp/kasane/internal/storage"
	"github.com/guilhermexp/kasane/internal/store"
	"github.com/guilhermexp/kasane/internal/vector"
)

// Meta keys persisted in the snapshot store.
const (
	metaKeyEmbeddingModel = "embedding_model"
	metaKeyLastLoad       = "last_load"
)

// Config holds the coordinator's operational settings.
type Config struct {
	// VectorSnapshotPath is where the vector index is persisted.
	VectorSnapshotPath string
	// EmbedTimeout bounds each call to the embedding backend.
	EmbedTimeout time.Duration
}

// Pile coordinates the document store, snapshot store, and both
// sub-indexes for one journal.
type Pile struct {
	docs     store.Store
	snapshot storage.Store
	lexical  lexical.Index
	embedder embedding.Embedder
	cfg      Config
	logger   *zap.Logger

	// writeMu serializes all mutations (add/update/remove/regenerate).
	writeMu sync.Mutex
	// saveMu serializes background vector snapshot writes.
	saveMu sync.Mutex
	// stateMu guards the in-memory entry map and the vector index
	// pointer. Readers hold it briefly; they never wait on writeMu.
	stateMu     sync.RWMutex
	entries     map[string]*models.Entry
	vec         *vector.MemoryIndex
	vectorReady bool
	staleModel  *models.StaleEmbeddingModelError
	regenJob    string
}

// Option configures a Pile.
type Option func(*Pile)

// WithLogger sets a logger for progress and absorbed per-entry errors.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pile) { p.logger = l }
}

// New creates a coordinator over the given stores and indexes.
func New(docs store.Store, snapshot storage.Store, lex lexical.Index, embedder embedding.Embedder, cfg Config, opts ...Option) *Pile {
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 30 * time.Second
	}
	p := &Pile{
		docs:     docs,
		snapshot: snapshot,
		lexical:  lex,
		embedder: embedder,
		cfg:      cfg,
		logger:   zap.NewNop(),
		entries:  make(map[string]*models.Entry),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadReport summarizes what Load did. StaleModel is non-nil when the
// persisted vectors came from a different embedding model; vector
// search stays disabled until RegenerateEmbeddings completes.
type LoadReport struct {
	Indexed    int
	Unchanged  int
	Removed    int
	Skipped    int
	StaleModel *models.StaleEmbeddingModelError
}

// Load scans the corpus, reconciles it with the persisted snapshot, and
// brings both sub-indexes up to date. Individual unreadable entries are
// skipped and logged; an unreadable corpus root is fatal and reported
// as *models.IndexLoadError.
func (p *Pile) Load(ctx context.Context) (*LoadReport, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	paths, err := p.docs.ListEntries()
	if err != nil {
		return nil, &models.IndexLoadError{Root: p.docs.Root(), Err: err}
	}

	prev := make(map[string]*models.Entry)
	if stored, err := p.snapshot.ListEntries(ctx); err != nil {
		p.logger.Warn("snapshot read failed, rebuilding from corpus", zap.Error(err))
	} else {
		for _, e := range stored {
			prev[e.Path] = e
		}
	}

	vec, vecErr := vector.LoadSnapshot(p.cfg.VectorSnapshotPath, p.embedder.Model(), p.embedder.Dimensions())
	report := &LoadReport{}
	vectorReady := true
	if vecErr != nil {
		var stale *models.StaleEmbeddingModelError
		if errors.As(vecErr, &stale) {
			p.logger.Warn("embedding model changed, vector search disabled until regeneration",
				zap.String("indexed_model", stale.IndexedModel),
				zap.String("configured_model", stale.ConfiguredModel))
			report.StaleModel = stale
			vectorReady = false
		} else {
			p.logger.Warn("vector snapshot unreadable, starting empty", zap.Error(vecErr))
			vec, vecErr = vector.NewMemoryIndex(p.embedder.Model(), p.embedder.Dimensions())
			if vecErr != nil {
				return nil, vecErr
			}
		}
	}

	entries := make(map[string]*models.Entry, len(paths))
	onDisk := make(map[string]bool, len(paths))
	for _, path := range paths {
		onDisk[path] = true
		eb, err := p.docs.ReadEntry(path)
		if err != nil {
			p.logger.Warn("skipping unreadable entry", zap.String("path", path), zap.Error(err))
			report.Skipped++
			continue
		}
		entry := eb.Entry
		entries[path] = &entry

		changed := true
		if old, ok := prev[path]; ok && old.Fingerprint == entry.Fingerprint {
			changed = false
		}
		// Lexical always re-registers: the bleve index may have been
		// opened from disk, but the recency tie-break map is in memory.
		if err := p.lexical.Index(path, eb); err != nil {
			p.logger.Warn("lexical index failed", zap.String("path", path), zap.Error(err))
		}
		if !changed {
			report.Unchanged++
			continue
		}
		report.Indexed++
		if err := p.snapshot.UpsertEntry(ctx, &entry); err != nil {
			p.logger.Warn("snapshot upsert failed", zap.String("path", path), zap.Error(err))
		}
		if vectorReady && !entry.IsReply {
			if err := p.embedInto(ctx, vec, path); err != nil {
				p.logger.Warn("embedding failed, thread stays unindexed until next change",
					zap.String("path", path), zap.Error(err))
			}
		}
	}

	// Purge snapshot entries whose files vanished.
	for path := range prev {
		if onDisk[path] {
			continue
		}
		report.Removed++
		if err := p.snapshot.DeleteEntry(ctx, path); err != nil {
			p.logger.Warn("snapshot delete failed", zap.String("path", path), zap.Error(err))
		}
		_ = p.lexical.Remove(path)
		vec.Remove(path)
	}
	// Purge orphaned vectors (entries deleted while the app was closed).
	for _, path := range vec.Paths() {
		if _, ok := entries[path]; !ok {
			vec.Remove(path)
		}
	}

	p.stateMu.Lock()
	p.entries = entries
	p.vec = vec
	p.vectorReady = vectorReady
	p.staleModel = report.StaleModel
	p.stateMu.Unlock()

	if vectorReady {
		if err := vec.Save(p.cfg.VectorSnapshotPath); err != nil {
			p.logger.Warn("vector snapshot save failed", zap.Error(err))
		}
	}
	_ = p.snapshot.SetMeta(ctx, metaKeyEmbeddingModel, p.embedder.Model())
	_ = p.snapshot.SetMeta(ctx, metaKeyLastLoad, time.Now().UTC().Format(time.RFC3339))

	p.logger.Info("journal index loaded",
		zap.Int("entries", len(entries)),
		zap.Int("indexed", report.Indexed),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("removed", report.Removed),
		zap.Int("skipped", report.Skipped),
		zap.Bool("vector_ready", vectorReady))
	return report, nil
}

// embedInto embeds the thread rooted at path into idx, respecting the
// per-call embed timeout.
func (p *Pile) embedInto(ctx context.Context, idx *vector.MemoryIndex, path string) error {
	text, err := p.docs.ThreadText(path)
	if err != nil {
		return err
	}
	embedCtx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
	defer cancel()
	vecData, err := p.embedder.Embed(embedCtx, text)
	if err != nil {
		return err
	}
	return idx.Upsert(path, vecData)
}

// sortedEntries returns the entries ordered by creation time, newest
// first, with path as the final tie-break.
func sortedEntries(m map[string]*models.Entry) []models.Entry {
	out := make([]models.Entry, 0, len(m))
	for _, e := range m {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Path < out[j].Path
	})
	return out
}
