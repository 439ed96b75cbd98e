// Package similarity holds the similarity math shared by the pipeline layers:
// vector cosine, metadata proximity, lexical overlap and weighted score records.
package similarity

import "math"

// CosineSimilarity computes the cosine similarity between two embedding vectors.
// Returns a value clamped to [-1, 1]; mismatched, empty or zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dotProduct / math.Sqrt(normA*normB)
	// Clamp to [-1, 1] to handle floating point errors
	return clamp(similarity, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 limits v to the [0, 1] range used by every sub-score.
func Clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}
