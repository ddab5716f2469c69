package index

import (
	"fmt"
	"sort"
	"sync"
)

// Flat is a brute-force exact index. It guarantees the true nearest
// neighbors at O(n) per query, which beats an ANN structure's overhead
// below a few hundred vectors.
type Flat struct {
	mu        sync.RWMutex
	ids       []string
	vectors   [][]float32
	dimension int
}

// NewFlat creates a brute-force index for vectors of the given
// dimension.
func NewFlat(dimension int) *Flat {
	return &Flat{dimension: dimension}
}

// Add inserts a vector under the given id.
func (f *Flat) Add(id string, vector []float32) error {
	if len(vector) != f.dimension {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", f.dimension, len(vector))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	v := make([]float32, len(vector))
	copy(v, vector)
	f.ids = append(f.ids, id)
	f.vectors = append(f.vectors, v)
	return nil
}

// Search scans every vector and returns the top-k ids with their cosine
// similarities, best first.
func (f *Flat) Search(query []float32, k int) ([]string, []float64, error) {
	if len(query) != f.dimension {
		return nil, nil, fmt.Errorf("query dimension %d doesn't match index dimension %d", len(query), f.dimension)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	type candidate struct {
		idx int
		sim float64
	}
	candidates := make([]candidate, len(f.vectors))
	for i, vec := range f.vectors {
		candidates[i] = candidate{i, CosineSimilarity(query, vec)}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})

	topK := k
	if len(candidates) < topK {
		topK = len(candidates)
	}
	ids := make([]string, topK)
	sims := make([]float64, topK)
	for i := 0; i < topK; i++ {
		ids[i] = f.ids[candidates[i].idx]
		sims[i] = candidates[i].sim
	}
	return ids, sims, nil
}

// Len returns the number of indexed vectors.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}
