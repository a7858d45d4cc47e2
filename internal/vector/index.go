// Package vector provides per-entry vector storage and similarity search.
package vector

import "github.com/guilhermexp/kasane/internal/models"

// Index stores one embedding per entry thread and ranks by cosine
// similarity. It does not compute embeddings; vectors arrive
// precomputed from the embedding backend.
type Index interface {
	// Upsert stores the vector for path, replacing any previous one.
	Upsert(path string, vec []float32) error
	// Remove deletes the vector for path. Unknown paths are a no-op.
	Remove(path string)
	// Query returns up to topN hits sorted by descending similarity,
	// scores normalized to [0,1]. An empty index returns no hits.
	Query(query []float32, topN int) ([]models.SearchHit, error)
	Size() int
	// Model identifies the embedding model the stored vectors came from.
	Model() string
	Dimensions() int
	// Save persists the index, recording the model and dimensionality.
	Save(path string) error
}
