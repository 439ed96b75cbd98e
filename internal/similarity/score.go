package similarity

import "github.com/kozaktomas/photo-dedup/internal/photo"

// Score is the per-pair similarity record. Every sub-score and Overall lie in [0, 1].
type Score struct {
	PhotoA   string  `json:"photo_a"`
	PhotoB   string  `json:"photo_b"`
	Visual   float64 `json:"visual"`
	Content  float64 `json:"content"`
	Temporal float64 `json:"temporal"`
	Spatial  float64 `json:"spatial"`
	Semantic float64 `json:"semantic"`
	Overall  float64 `json:"overall"`
}

// Weights combines sub-scores into an overall similarity.
type Weights struct {
	Visual   float64
	Content  float64
	Temporal float64
	Spatial  float64
	Semantic float64
}

// Stage weights used by the pipeline layers.
var (
	PerceptualWeights = Weights{Visual: 1}
	VisualWeights     = Weights{Visual: 0.8, Temporal: 0.1, Spatial: 0.1}
	SemanticWeights   = Weights{Semantic: 1}
)

// Combine returns the weighted sum of the sub-scores, clamped to [0, 1].
func (w Weights) Combine(s Score) float64 {
	return Clamp01(w.Visual*s.Visual +
		w.Content*s.Content +
		w.Temporal*s.Temporal +
		w.Spatial*s.Spatial +
		w.Semantic*s.Semantic)
}

// Metadata fills the metadata-derived sub-scores for a pair of photos.
// Visual and Overall are left for the caller.
func Metadata(a, b *photo.Photo, vocab Vocabulary) Score {
	return Score{
		PhotoA:   a.ID,
		PhotoB:   b.ID,
		Content:  ContentScore(a, b),
		Temporal: TemporalScore(a.CapturedAt, b.CapturedAt),
		Spatial:  SpatialScore(a, b),
		Semantic: SemanticScore(a, b, vocab),
	}
}

// SemanticScore is the better of tag overlap and description similarity.
func SemanticScore(a, b *photo.Photo, vocab Vocabulary) float64 {
	return max(TagSimilarity(a.Tags, b.Tags), DescriptionSimilarity(a.Description, b.Description, vocab))
}

// Exact is the score of a byte-identical pair.
func Exact(a, b *photo.Photo, vocab Vocabulary) Score {
	s := Metadata(a, b, vocab)
	s.Visual = 1.0
	s.Overall = 1.0
	return s
}

// Average returns the component-wise mean of scores, with Overall recomputed by w.
// PhotoA and PhotoB are taken from the first score.
func Average(scores []Score, w Weights) Score {
	if len(scores) == 0 {
		return Score{}
	}
	var avg Score
	for _, s := range scores {
		avg.Visual += s.Visual
		avg.Content += s.Content
		avg.Temporal += s.Temporal
		avg.Spatial += s.Spatial
		avg.Semantic += s.Semantic
	}
	n := float64(len(scores))
	avg.PhotoA = scores[0].PhotoA
	avg.PhotoB = scores[0].PhotoB
	avg.Visual /= n
	avg.Content /= n
	avg.Temporal /= n
	avg.Spatial /= n
	avg.Semantic /= n
	avg.Overall = w.Combine(avg)
	return avg
}
