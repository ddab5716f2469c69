// Package index provides the nearest-neighbor structures behind semantic
// search: a brute-force flat index for small vocabularies and an IVF
// partitioned index for large ones.
package index

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// CosineSimilarity computes the cosine of the angle between two vectors,
// in [-1, 1]. Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	dot := float64(vek32.Dot(a, b))
	normA := math.Sqrt(float64(vek32.Dot(a, a)))
	normB := math.Sqrt(float64(vek32.Dot(b, b)))

	if normA == 0.0 || normB == 0.0 {
		return 0.0
	}
	return dot / (normA * normB)
}

// Normalize scales a vector to unit length in place and returns it.
// Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	norm := math.Sqrt(float64(vek32.Dot(v, v)))
	if norm == 0 {
		return v
	}
	vek32.DivNumber_Inplace(v, float32(norm))
	return v
}

// euclideanDistance is used for centroid assignment during clustering.
// For unit vectors it ranks candidates identically to cosine similarity.
func euclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// RescaleCosine maps a cosine similarity in [-1, 1] onto the shared
// 0-100 match score scale.
func RescaleCosine(sim float64) float64 {
	return (sim + 1) * 50
}
