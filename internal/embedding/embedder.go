// Package embedding provides clients for external embedding backends and caching.
package embedding

import "context"

// Embedder produces vector embeddings for text by calling an external
// backend. Implementations retry a failed call at most once, then
// report *models.EmbeddingBackendError; callers degrade from there.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model identifies the backend model, recorded alongside persisted
	// vectors so snapshots from a different model are never mixed in.
	Model() string
	Dimensions() int
}
