package feature

import (
	"sort"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/photo-dedup/internal/similarity"
)

const (
	// BruteForceLimit is the largest vector count compared exhaustively.
	BruteForceLimit = 64
	// DefaultNeighbors is the HNSW top-K searched per vector.
	DefaultNeighbors = 16
	// hnswMaxNeighbors is the graph degree M.
	hnswMaxNeighbors = 16
)

// Pair is a visually similar pair, as indexes into the input slice with I < J.
type Pair struct {
	I, J       int
	Similarity float64
}

// SimilarPairs returns every pair of vectors whose cosine similarity reaches
// threshold. Up to BruteForceLimit vectors are compared pairwise; larger sets
// are searched through an HNSW index limited to the k nearest neighbours of
// each vector. Pairs are ordered by (I, J).
func SimilarPairs(vectors []Vector, threshold float64, k int) []Pair {
	if len(vectors) < 2 {
		return nil
	}
	if len(vectors) <= BruteForceLimit {
		return bruteForcePairs(vectors, threshold)
	}
	return indexedPairs(vectors, threshold, k)
}

func bruteForcePairs(vectors []Vector, threshold float64) []Pair {
	var pairs []Pair
	for i := range vectors {
		for j := i + 1; j < len(vectors); j++ {
			sim := similarity.CosineSimilarity(vectors[i].Embedding, vectors[j].Embedding)
			if sim >= threshold {
				pairs = append(pairs, Pair{I: i, J: j, Similarity: sim})
			}
		}
	}
	return pairs
}

func indexedPairs(vectors []Vector, threshold float64, k int) []Pair {
	if k <= 0 {
		k = DefaultNeighbors
	}

	g := hnsw.NewGraph[int]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	g.EfSearch = max(k*2, 20)

	for i, v := range vectors {
		if len(v.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(i, v.Embedding))
	}

	seen := make(map[[2]int]struct{})
	var pairs []Pair
	for i, v := range vectors {
		if len(v.Embedding) == 0 {
			continue
		}
		// The vector itself is usually among its own neighbours.
		for _, n := range g.Search(v.Embedding, k+1) {
			if n.Key == i {
				continue
			}
			a, b := min(i, n.Key), max(i, n.Key)
			if _, ok := seen[[2]int{a, b}]; ok {
				continue
			}
			sim := similarity.CosineSimilarity(vectors[a].Embedding, vectors[b].Embedding)
			if sim >= threshold {
				seen[[2]int{a, b}] = struct{}{}
				pairs = append(pairs, Pair{I: a, J: b, Similarity: sim})
			}
		}
	}

	sort.Slice(pairs, func(x, y int) bool {
		if pairs[x].I != pairs[y].I {
			return pairs[x].I < pairs[y].I
		}
		return pairs[x].J < pairs[y].J
	})
	return pairs
}
