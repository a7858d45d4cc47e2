package pile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guilhermexp/kasane/internal/models"
	"github.com/guilhermexp/kasane/internal/vector"
)

// ErrRegenerationRunning reports that a regeneration job already holds
// the slot.
var ErrRegenerationRunning = errors.New("embedding regeneration already running")

// claimRegen atomically claims the regeneration slot and returns the
// new job id.
func (p *Pile) claimRegen() (string, error) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.regenJob != "" {
		return "", ErrRegenerationRunning
	}
	job := uuid.New().String()
	p.regenJob = job
	return job, nil
}

// RegenerateEmbeddings recomputes every thread embedding from current
// entry text. It is the recovery path after the embedding backend or
// model changes. Only one regeneration runs at a time; a second call
// while one is in flight returns ErrRegenerationRunning.
func (p *Pile) RegenerateEmbeddings(ctx context.Context) error {
	job, err := p.claimRegen()
	if err != nil {
		return err
	}
	return p.regenerate(ctx, job)
}

// StartRegeneration claims the regeneration slot and runs the batch in
// the background. The returned job id is visible through RegenJob and
// Status from the moment this returns.
func (p *Pile) StartRegeneration() (string, error) {
	job, err := p.claimRegen()
	if err != nil {
		return "", err
	}
	go func() {
		if err := p.regenerate(context.Background(), job); err != nil {
			p.logger.Error("embedding regeneration failed",
				zap.String("job", job), zap.Error(err))
		}
	}()
	return job, nil
}

// regenerate runs the claimed job. The batch builds a fresh index and
// swaps it in only when complete: readers either see the previous
// consistent vector set or the new one, never a mix. Cancelling the
// context aborts without swapping. Per-entry embed failures skip that
// entry and continue.
func (p *Pile) regenerate(ctx context.Context, job string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	defer func() {
		p.stateMu.Lock()
		p.regenJob = ""
		p.stateMu.Unlock()
	}()

	p.stateMu.Lock()
	roots := make([]string, 0, len(p.entries))
	for path, entry := range p.entries {
		if !entry.IsReply {
			roots = append(roots, path)
		}
	}
	p.stateMu.Unlock()

	log := p.logger.With(zap.String("job", job))
	log.Info("regenerating embeddings",
		zap.Int("threads", len(roots)),
		zap.String("model", p.embedder.Model()))
	start := time.Now()

	fresh, err := vector.NewMemoryIndex(p.embedder.Model(), p.embedder.Dimensions())
	if err != nil {
		return err
	}
	embedded, skipped := 0, 0
	for _, path := range roots {
		if err := ctx.Err(); err != nil {
			log.Warn("regeneration cancelled, previous vectors kept", zap.Error(err))
			return err
		}
		if err := p.embedInto(ctx, fresh, path); err != nil {
			log.Warn("skipping thread", zap.String("path", path), zap.Error(err))
			skipped++
			continue
		}
		embedded++
	}

	p.stateMu.Lock()
	p.vec = fresh
	p.vectorReady = true
	p.staleModel = nil
	p.stateMu.Unlock()

	if err := fresh.Save(p.cfg.VectorSnapshotPath); err != nil {
		log.Warn("vector snapshot save failed", zap.Error(err))
	}
	_ = p.snapshot.SetMeta(ctx, metaKeyEmbeddingModel, p.embedder.Model())

	log.Info("embedding regeneration complete",
		zap.Int("embedded", embedded),
		zap.Int("skipped", skipped),
		zap.Duration("took", time.Since(start)))
	return nil
}

// StaleModel returns the model mismatch detected at load time, or nil.
// Non-nil means vector search is disabled until RegenerateEmbeddings
// completes.
func (p *Pile) StaleModel() *models.StaleEmbeddingModelError {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.staleModel
}

// RegenJob returns the id of the in-flight regeneration, or "".
func (p *Pile) RegenJob() string {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.regenJob
}
