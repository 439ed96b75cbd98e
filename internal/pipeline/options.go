package pipeline

import (
	"time"

	"github.com/kozaktomas/photo-dedup/internal/constants"
	"github.com/kozaktomas/photo-dedup/internal/photo"
)

// Layer names a pipeline stage.
type Layer string

// Layer values in execution order.
const (
	LayerContent    Layer = "content"
	LayerPerceptual Layer = "perceptual"
	LayerVisual     Layer = "visual"
	LayerMetadata   Layer = "metadata"
	LayerGrouping   Layer = "grouping"
	LayerSemantic   Layer = "semantic"
)

// Progress is reported to Options.OnProgress and broadcast as a progress event.
type Progress struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage"`
	Message string `json:"message,omitempty"`
}

// Options configures a single run. Zero numeric fields take their defaults;
// layer switches are taken as given, so start from DefaultOptions.
type Options struct {
	// SimilarityThreshold is the minimum embedding cosine similarity for a visual match.
	SimilarityThreshold float64
	// ConfidenceThreshold selects FilteredGroups from AllGroups.
	ConfidenceThreshold float64
	// DHashSize is the dHash grid width.
	DHashSize int
	// DHashThreshold is the minimum dHash similarity for a near-duplicate.
	DHashThreshold float64
	// SemanticThreshold is the minimum caption similarity in the fallback.
	SemanticThreshold float64
	BatchSize         int
	BatchDelay        time.Duration
	// FallbackSampleSize caps the number of photos captioned by the fallback.
	FallbackSampleSize int
	// Neighbors is the top-K searched per photo when the HNSW index is used.
	Neighbors int
	// ImagePurposes is the URL preference order; empty means photo.DefaultPurposes.
	ImagePurposes []photo.Purpose

	EnableContent    bool
	EnablePerceptual bool
	EnableVisual     bool
	EnableMetadata   bool
	EnableSemantic   bool

	OnProgress func(Progress)
}

// DefaultOptions returns options with every layer enabled and default thresholds.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: constants.DefaultVisualThreshold,
		ConfidenceThreshold: constants.DefaultConfidenceThreshold,
		DHashSize:           constants.DefaultDHashSize,
		DHashThreshold:      constants.DefaultDHashThreshold,
		SemanticThreshold:   constants.DefaultSemanticThreshold,
		BatchSize:           constants.DefaultBatchSize,
		BatchDelay:          constants.DefaultBatchDelay,
		FallbackSampleSize:  constants.DefaultFallbackSampleSize,
		Neighbors:           constants.DefaultNeighbors,
		EnableContent:       true,
		EnablePerceptual:    true,
		EnableVisual:        true,
		EnableMetadata:      true,
		EnableSemantic:      true,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = def.SimilarityThreshold
	}
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if o.DHashSize <= 0 {
		o.DHashSize = def.DHashSize
	}
	if o.DHashThreshold <= 0 {
		o.DHashThreshold = def.DHashThreshold
	}
	if o.SemanticThreshold <= 0 {
		o.SemanticThreshold = def.SemanticThreshold
	}
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	}
	if o.FallbackSampleSize <= 0 {
		o.FallbackSampleSize = def.FallbackSampleSize
	}
	if o.Neighbors <= 0 {
		o.Neighbors = def.Neighbors
	}
	if len(o.ImagePurposes) == 0 {
		o.ImagePurposes = photo.DefaultPurposes
	}
	return o
}
