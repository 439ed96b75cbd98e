package pipeline

import (
	"context"

	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/similarity"
)

// Candidate widening bounds for photos of the same project.
const (
	widenTemporalMin      = 0.85
	widenSpatialMin       = 0.92
	widenBurstTemporalMin = 0.98
)

// metadataCandidate reports whether two photos of the same project were taken
// close enough in time (and place) to be compared even without a visual match.
func metadataCandidate(a, b *photo.Photo) bool {
	if a.ProjectID == "" || a.ProjectID != b.ProjectID {
		return false
	}
	t := similarity.TemporalScore(a.CapturedAt, b.CapturedAt)
	if t >= widenBurstTemporalMin {
		return true
	}
	return t >= widenTemporalMin && similarity.SpatialScore(a, b) >= widenSpatialMin
}

// metadataLayer adds proximity candidates to candidates.
func (r *run) metadataLayer(ctx context.Context, photos []*photo.Photo, candidates map[string]bool) error {
	for i, a := range photos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if a.ProjectID == "" {
			continue
		}
		for _, b := range photos[i+1:] {
			if metadataCandidate(a, b) {
				candidates[a.ID] = true
				candidates[b.ID] = true
			}
		}
	}
	return nil
}
