// Package lexical provides keyword search over entry titles, bodies, and tags.
package lexical

import (
	"github.com/guilhermexp/kasane/internal/models"
)

// Index defines lexical search operations. Only the index coordinator
// writes to it.
type Index interface {
	// Index adds or replaces the entry at path. Must be cheap enough to
	// run on every save.
	Index(path string, entry *models.EntryBody) error
	// Remove deletes the entry. Removing an unknown path is a no-op.
	Remove(path string) error
	// Search returns up to limit hits with scores normalized to [0,1],
	// ordered by score descending with ties broken by most recent
	// update. An empty or content-free query returns no hits.
	Search(query string, limit int) ([]models.SearchHit, error)
	DocCount() (uint64, error)
	Close() error
}
