package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// MockEmbedder is a deterministic embedder for tests. It returns a
// fixed-dimension unit vector derived from the text hash so the same
// text always gets the same embedding.
type MockEmbedder struct {
	model      string
	dimensions int
	// Fail, when set, makes every Embed call return this error.
	Fail error
}

// NewMockEmbedder returns an embedder producing deterministic embeddings.
func NewMockEmbedder(model string, dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 8
	}
	return &MockEmbedder{model: model, dimensions: dimensions}
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.Fail != nil {
		return nil, e.Fail
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := float64(h.Sum32())

	vec := make([]float32, e.dimensions)
	var sum float64
	for i := range vec {
		v := math.Sin(seed*float64(i+1)) + 0.01
		vec[i] = float32(v)
		sum += v * v
	}
	if sum > 0 {
		norm := float32(1.0 / math.Sqrt(sum))
		for i := range vec {
			vec[i] *= norm
		}
	}
	return vec, nil
}

// Model returns the mock model name.
func (e *MockEmbedder) Model() string { return e.model }

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int { return e.dimensions }
