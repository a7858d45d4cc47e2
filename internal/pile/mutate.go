package pile

import (
	"context"

	"go.uber.org/zap"

	"github.com/guilhermexp/kasane/internal/vector"
)

// Add indexes the entry at path. Adding an already-indexed path behaves
// like Update, so the call is idempotent. The in-memory state is
// updated synchronously; the vector snapshot is persisted in the
// background (state is re-derivable from disk on the next load).
func (p *Pile) Add(ctx context.Context, path string) error {
	return p.Update(ctx, path)
}

// Update re-reads the entry at path and refreshes both sub-indexes and
// the snapshot. An embedding failure leaves the previous vector in
// place (served as-is until the next successful update) and is not an
// error.
func (p *Pile) Update(ctx context.Context, path string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	eb, err := p.docs.ReadEntry(path)
	if err != nil {
		return err
	}
	entry := eb.Entry

	if err := p.lexical.Index(path, eb); err != nil {
		return err
	}
	if err := p.snapshot.UpsertEntry(ctx, &entry); err != nil {
		p.logger.Warn("snapshot upsert failed", zap.String("path", path), zap.Error(err))
	}

	p.stateMu.Lock()
	p.entries[path] = &entry
	vec := p.vec
	ready := p.vectorReady
	p.stateMu.Unlock()

	if ready && vec != nil {
		// Replies are embedded as part of their parent thread.
		target := path
		if entry.IsReply {
			target = p.parentOf(path)
		}
		if target != "" {
			if err := p.embedInto(ctx, vec, target); err != nil {
				p.logger.Warn("embedding failed, serving previous vector",
					zap.String("path", target), zap.Error(err))
			}
		}
		p.saveVectorsAsync(vec)
	}
	return nil
}

// Remove purges the entry at path from the in-memory map and both
// sub-indexes. Removing an unknown path is a no-op.
func (p *Pile) Remove(ctx context.Context, path string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.stateMu.Lock()
	_, known := p.entries[path]
	delete(p.entries, path)
	vec := p.vec
	p.stateMu.Unlock()
	if !known {
		return nil
	}

	if err := p.lexical.Remove(path); err != nil {
		p.logger.Warn("lexical remove failed", zap.String("path", path), zap.Error(err))
	}
	if vec != nil {
		vec.Remove(path)
		p.saveVectorsAsync(vec)
	}
	if err := p.snapshot.DeleteEntry(ctx, path); err != nil {
		p.logger.Warn("snapshot delete failed", zap.String("path", path), zap.Error(err))
	}
	return nil
}

// parentOf finds the thread root whose replies include path. Returns ""
// when no parent is known yet (the parent's metadata may not have been
// rewritten at the time the reply lands; the parent's own update will
// re-embed the thread).
func (p *Pile) parentOf(path string) string {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	for root, entry := range p.entries {
		if entry.IsReply {
			continue
		}
		for _, reply := range entry.Replies {
			if reply == path {
				return root
			}
		}
	}
	return ""
}

// saveVectorsAsync persists the vector snapshot without blocking the
// mutation. Saves are serialized; a crash between the in-memory update
// and the write is recovered by the next Load.
func (p *Pile) saveVectorsAsync(vec *vector.MemoryIndex) {
	go func() {
		p.saveMu.Lock()
		defer p.saveMu.Unlock()
		if err := vec.Save(p.cfg.VectorSnapshotPath); err != nil {
			p.logger.Warn("vector snapshot save failed", zap.Error(err))
		}
	}()
}
