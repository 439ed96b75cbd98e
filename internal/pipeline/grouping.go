package pipeline

import (
	"context"

	"github.com/kozaktomas/photo-dedup/internal/feature"
	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/similarity"
)

// Group type classification bounds, applied to the representative score.
const (
	retryTemporalMin       = 0.95
	incrementalSpatialMin  = 0.6
	incrementalTemporalMax = 0.3
)

// classify derives the group type of a perceptual or visual group.
func classify(s similarity.Score) GroupType {
	switch {
	case s.Temporal >= retryTemporalMin:
		return GroupRetryShots
	case s.Spatial >= incrementalSpatialMin && s.Temporal <= incrementalTemporalMax:
		return GroupIncrementalProgress
	default:
		return GroupAngleVariations
	}
}

// cluster is a group found by greedyClusters. edges holds the seed's score
// against each absorbed member.
type cluster struct {
	members []int
	edges   []similarity.Score
}

// greedyClusters walks indexes in order. The first unprocessed eligible index
// seeds a cluster and absorbs every later unprocessed eligible index that
// compare reports as a match. Only clusters of two or more are returned.
func greedyClusters(ctx context.Context, n int, eligible func(i int) bool,
	compare func(i, j int) (similarity.Score, bool),
) ([]cluster, error) {
	processed := make([]bool, n)
	var out []cluster

	for i := range n {
		if processed[i] || !eligible(i) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		processed[i] = true

		c := cluster{members: []int{i}}
		for j := i + 1; j < n; j++ {
			if processed[j] || !eligible(j) {
				continue
			}
			score, match := compare(i, j)
			if match {
				processed[j] = true
				c.members = append(c.members, j)
				c.edges = append(c.edges, score)
			}
		}
		if len(c.members) >= 2 {
			out = append(out, c)
		}
	}
	return out, nil
}

func pick(photos []*photo.Photo, idx []int) []*photo.Photo {
	out := make([]*photo.Photo, len(idx))
	for i, k := range idx {
		out[i] = photos[k]
	}
	return out
}

// groupCandidates is the final pairwise pass over merged candidates. Pairs
// without embeddings on both sides are skipped.
func (r *run) groupCandidates(ctx context.Context, photos []*photo.Photo, vectors map[string]*feature.Vector) error {
	clusters, err := greedyClusters(ctx, len(photos),
		func(i int) bool { return vectors[photos[i].ID] != nil },
		func(i, j int) (similarity.Score, bool) {
			a, b := photos[i], photos[j]
			cos := similarity.CosineSimilarity(vectors[a.ID].Embedding, vectors[b.ID].Embedding)
			s := similarity.Metadata(a, b, r.p.vocab)
			s.Visual = similarity.Clamp01(cos)
			s.Overall = similarity.VisualWeights.Combine(s)
			r.matrix.Set(a.ID, b.ID, s)
			return s, cos >= r.opts.SimilarityThreshold
		})
	if err != nil {
		return err
	}

	for _, c := range clusters {
		rep := similarity.Average(c.edges, similarity.VisualWeights)
		r.addGroup(pick(photos, c.members), rep, classify(rep), rep.Overall, LayerGrouping)
	}
	return nil
}
