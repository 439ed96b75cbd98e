// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Pagination constants
const (
	// DefaultPageSize is the default number of items to fetch per API page
	DefaultPageSize = 1000

	// MaxPhotosPerFetch is the maximum number of photos loaded from a source in one run
	MaxPhotosPerFetch = 10000
)

// Pipeline thresholds
const (
	// DefaultVisualThreshold is the minimum embedding cosine similarity for a visual match.
	// Calibrated for CLIP ViT image embeddings, where unrelated photos of the same
	// scene type routinely score above 0.8.
	DefaultVisualThreshold = 0.985

	// DefaultConfidenceThreshold is the minimum group confidence kept in filtered results
	DefaultConfidenceThreshold = 0.85

	// DefaultDHashSize is the dHash grid width (hash has size*size bits)
	DefaultDHashSize = 8

	// DefaultDHashThreshold is the minimum dHash similarity for a near-duplicate
	DefaultDHashThreshold = 0.85

	// DefaultSemanticThreshold is the minimum caption similarity in the fallback layer
	DefaultSemanticThreshold = 0.7

	// PerceptualConfidence is the confidence assigned to perceptual-hash groups
	PerceptualConfidence = 0.9

	// SemanticConfidence is the confidence assigned to caption-similarity groups
	SemanticConfidence = 0.7
)

// Processing constants
const (
	// DefaultBatchSize is the number of photos processed concurrently per batch
	DefaultBatchSize = 3

	// DefaultBatchDelay is the pause between batches
	DefaultBatchDelay = 200 * time.Millisecond

	// DefaultFallbackSampleSize is the number of photos captioned by the fallback layer
	DefaultFallbackSampleSize = 15

	// DefaultNeighbors is the HNSW top-K searched per photo for visual candidates
	DefaultNeighbors = 16

	// DefaultFetchRateLimit is the default image download rate (requests per second)
	DefaultFetchRateLimit = 10.0

	// DefaultFetchTimeout is the timeout of a single image download
	DefaultFetchTimeout = 60 * time.Second
)
