// Package storage persists the index snapshot: entry metadata, content
// fingerprints, and engine metadata.
package storage

import (
	"context"

	"github.com/guilhermexp/kasane/internal/models"
)

// Store is the coordinator's persisted snapshot. Only the coordinator
// writes it; it is read back at load time to avoid a full corpus rescan.
type Store interface {
	UpsertEntry(ctx context.Context, entry *models.Entry) error
	GetEntry(ctx context.Context, path string) (*models.Entry, error)
	DeleteEntry(ctx context.Context, path string) error
	// ListEntries returns all entries ordered by creation time, newest
	// first.
	ListEntries(ctx context.Context) ([]*models.Entry, error)
	CountEntries(ctx context.Context) (int64, error)

	// SetMeta / GetMeta store engine-level metadata (embedding model,
	// last load time). GetMeta returns "" for unknown keys.
	SetMeta(ctx context.Context, key, value string) error
	GetMeta(ctx context.Context, key string) (string, error)

	Close() error
}
