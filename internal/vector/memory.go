package vector

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/guilhermexp/kasane/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force cosine
// search. Journals stay well under the size where approximate search
// pays off, and brute force keeps ranking exact and deterministic.
type MemoryIndex struct {
	model      string
	dimensions int

	mu      sync.RWMutex
	vectors map[string]record
}

type record struct {
	vec  []float32
	norm float64
}

// NewMemoryIndex creates an empty index for vectors from the given
// embedding model.
func NewMemoryIndex(model string, dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		model:      model,
		dimensions: dimensions,
		vectors:    make(map[string]record),
	}, nil
}

// Upsert stores the vector for path, replacing any previous one.
func (m *MemoryIndex) Upsert(path string, vec []float32) error {
	if len(vec) != m.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), m.dimensions)
	}
	cp := make([]float32, m.dimensions)
	copy(cp, vec)
	m.mu.Lock()
	m.vectors[path] = record{vec: cp, norm: l2Norm(cp)}
	m.mu.Unlock()
	return nil
}

// Remove deletes the vector for path.
func (m *MemoryIndex) Remove(path string) {
	m.mu.Lock()
	delete(m.vectors, path)
	m.mu.Unlock()
}

// Query returns up to topN hits by descending cosine similarity, with
// scores mapped to [0,1] by NormalizeCosine. Ties are broken by path so
// repeated queries return the same order.
func (m *MemoryIndex) Query(query []float32, topN int) ([]models.SearchHit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topN <= 0 || len(m.vectors) == 0 {
		return nil, nil
	}

	qnorm := l2Norm(query)
	hits := make([]models.SearchHit, 0, len(m.vectors))
	for path, rec := range m.vectors {
		cos := 0.0
		if qnorm > 0 && rec.norm > 0 {
			cos = dot(query, rec.vec) / (qnorm * rec.norm)
		}
		hits = append(hits, models.SearchHit{
			Ref:    path,
			Score:  NormalizeCosine(cos),
			Source: models.SourceVector,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Ref < hits[j].Ref
	})
	if topN < len(hits) {
		hits = hits[:topN]
	}
	return hits, nil
}

// Size returns the number of stored vectors.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Model returns the embedding model the stored vectors came from.
func (m *MemoryIndex) Model() string { return m.model }

// Dimensions returns the vector dimensionality.
func (m *MemoryIndex) Dimensions() int { return m.dimensions }

// Paths returns the stored entry paths in sorted order.
func (m *MemoryIndex) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.vectors))
	for p := range m.vectors {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func dot(a []float32, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
