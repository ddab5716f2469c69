package index

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// IVF is an inverted-file index: vectors are partitioned around k-means
// centroids and a query probes only the nearest partitions. Built once
// past the row-count threshold; partition counts are fixed at build time
// and never recomputed per query.
type IVF struct {
	nlist     int
	dimension int
	centroids [][]float32
	invlists  [][]int
	vectors   [][]float32
	ids       []string
	trained   bool
	nprobe    int
	mu        sync.RWMutex
}

// MaxPartitions caps the partition count regardless of dataset size.
const MaxPartitions = 256

// PartitionCount sizes the centroid list for a dataset: roughly one
// partition per 16 rows, at least 4, capped at MaxPartitions.
func PartitionCount(rows int) int {
	n := rows / 16
	if n < 4 {
		n = 4
	}
	if n > MaxPartitions {
		n = MaxPartitions
	}
	return n
}

// NewIVF creates an IVF index with nlist partitions.
func NewIVF(dimension, nlist int) *IVF {
	nprobe := nlist / 8
	if nprobe < 4 {
		nprobe = 4
	}
	if nprobe > nlist {
		nprobe = nlist
	}
	return &IVF{
		nlist:     nlist,
		dimension: dimension,
		invlists:  make([][]int, nlist),
		nprobe:    nprobe,
	}
}

// Train learns the partition centroids with k-means over the given
// vectors.
func (ivf *IVF) Train(vectors [][]float32) error {
	if len(vectors) < ivf.nlist {
		return fmt.Errorf("need at least %d vectors for training, got %d", ivf.nlist, len(vectors))
	}

	centroids, err := kMeans(vectors, ivf.nlist, 20)
	if err != nil {
		return fmt.Errorf("k-means training failed: %w", err)
	}

	ivf.mu.Lock()
	defer ivf.mu.Unlock()

	ivf.centroids = centroids
	ivf.trained = true
	for i := range ivf.invlists {
		ivf.invlists[i] = nil
	}
	return nil
}

// Trained reports whether centroids have been learned.
func (ivf *IVF) Trained() bool {
	ivf.mu.RLock()
	defer ivf.mu.RUnlock()
	return ivf.trained
}

// Add assigns a vector to its nearest partition.
func (ivf *IVF) Add(id string, vector []float32) error {
	ivf.mu.Lock()
	defer ivf.mu.Unlock()

	if !ivf.trained {
		return errors.New("index not trained")
	}
	if len(vector) != ivf.dimension {
		return fmt.Errorf("vector dimension %d doesn't match index dimension %d", len(vector), ivf.dimension)
	}

	centroidIdx := ivf.nearestCentroid(vector)
	vectorIdx := len(ivf.vectors)
	ivf.invlists[centroidIdx] = append(ivf.invlists[centroidIdx], vectorIdx)

	v := make([]float32, len(vector))
	copy(v, vector)
	ivf.vectors = append(ivf.vectors, v)
	ivf.ids = append(ivf.ids, id)
	return nil
}

// Search probes the nprobe nearest partitions and returns the top-k ids
// with their cosine similarities, best first.
func (ivf *IVF) Search(query []float32, k int) ([]string, []float64, error) {
	ivf.mu.RLock()
	defer ivf.mu.RUnlock()

	if !ivf.trained {
		return nil, nil, errors.New("index not trained")
	}
	if len(query) != ivf.dimension {
		return nil, nil, fmt.Errorf("query dimension %d doesn't match index dimension %d", len(query), ivf.dimension)
	}

	type centroidDist struct {
		idx  int
		dist float32
	}
	dists := make([]centroidDist, len(ivf.centroids))
	for i, centroid := range ivf.centroids {
		dists[i] = centroidDist{i, euclideanDistance(query, centroid)}
	}
	sort.Slice(dists, func(i, j int) bool {
		return dists[i].dist < dists[j].dist
	})

	nprobe := ivf.nprobe
	if nprobe > len(dists) {
		nprobe = len(dists)
	}

	type candidate struct {
		idx int
		sim float64
	}
	var candidates []candidate
	for i := 0; i < nprobe; i++ {
		for _, vectorIdx := range ivf.invlists[dists[i].idx] {
			sim := CosineSimilarity(query, ivf.vectors[vectorIdx])
			candidates = append(candidates, candidate{vectorIdx, sim})
		}
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
		ids[i] = ivf.ids[candidates[i].idx]
		sims[i] = candidates[i].sim
	}
	return ids, sims, nil
}

// Len returns the number of indexed vectors.
func (ivf *IVF) Len() int {
	ivf.mu.RLock()
	defer ivf.mu.RUnlock()
	return len(ivf.vectors)
}

// nearestCentroid finds the closest partition centroid for a vector.
func (ivf *IVF) nearestCentroid(vector []float32) int {
	minDist := float32(math.MaxFloat32)
	minIdx := 0
	for i, centroid := range ivf.centroids {
		if dist := euclideanDistance(vector, centroid); dist < minDist {
			minDist = dist
			minIdx = i
		}
	}
	return minIdx
}

// kMeans clusters vectors into k centroids with k-means++ seeding.
func kMeans(vectors [][]float32, k, maxIters int) ([][]float32, error) {
	if len(vectors) < k {
		return nil, fmt.Errorf("need at least %d vectors, got %d", k, len(vectors))
	}

	dim := len(vectors[0])
	centroids := make([][]float32, k)

	centroids[0] = make([]float32, dim)
	copy(centroids[0], vectors[rand.Intn(len(vectors))])

	// Remaining seeds picked with probability proportional to squared
	// distance from the nearest existing seed.
	for i := 1; i < k; i++ {
		distances := make([]float32, len(vectors))
		totalDist := float32(0)

		for j, vec := range vectors {
			minDist := float32(math.MaxFloat32)
			for c := 0; c < i; c++ {
				if dist := euclideanDistance(vec, centroids[c]); dist < minDist {
					minDist = dist
				}
			}
			distances[j] = minDist * minDist
			totalDist += distances[j]
		}

		r := rand.Float32() * totalDist
		cumSum := float32(0)
		picked := false
		for j, dist := range distances {
			cumSum += dist
			if cumSum >= r {
				centroids[i] = make([]float32, dim)
				copy(centroids[i], vectors[j])
				picked = true
				break
			}
		}
		if !picked {
			centroids[i] = make([]float32, dim)
			copy(centroids[i], vectors[len(vectors)-1])
		}
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < maxIters; iter++ {
		changed := false
		for i, vec := range vectors {
			minDist := float32(math.MaxFloat32)
			minIdx := 0
			for j, centroid := range centroids {
				if dist := euclideanDistance(vec, centroid); dist < minDist {
					minDist = dist
					minIdx = j
				}
			}
			if assignments[i] != minIdx {
				changed = true
				assignments[i] = minIdx
			}
		}
		if !changed {
			break
		}

		counts := make([]int, k)
		sums := make([][]float32, k)
		for i := range sums {
			sums[i] = make([]float32, dim)
		}
		for i, vec := range vectors {
			cluster := assignments[i]
			counts[cluster]++
			for j := 0; j < dim; j++ {
				sums[cluster][j] += vec[j]
			}
		}
		for i := range centroids {
			if counts[i] > 0 {
				for j := 0; j < dim; j++ {
					sums[i][j] /= float32(counts[i])
				}
				centroids[i] = sums[i]
			}
		}
	}

	return centroids, nil
}
