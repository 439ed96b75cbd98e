package pipeline

import (
	"context"

	"github.com/kozaktomas/photo-dedup/internal/constants"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/similarity"
)

// perceptualLayer groups near-duplicates by dHash and returns the rest.
// Photos that cannot be fetched or decoded are not grouped here but still
// move on to later layers.
func (r *run) perceptualLayer(ctx context.Context, photos []*photo.Photo) ([]*photo.Photo, error) {
	fps := make([]fingerprint.PerceptualFingerprint, len(photos))

	var idx []int
	for i, ph := range photos {
		if r.url(ph) != "" {
			idx = append(idx, i)
		}
	}

	errs, err := runBatched(ctx, idx, r.opts.BatchSize, r.opts.BatchDelay, func(ctx context.Context, i int) error {
		url := r.url(photos[i])
		data, err := r.images.Fetch(ctx, url)
		if err != nil {
			return err
		}
		hash, err := fingerprint.ComputeDHash(data, r.opts.DHashSize)
		if err != nil {
			return err
		}
		fps[i] = fingerprint.PerceptualFingerprint{PhotoID: photos[i].ID, HashHex: hash, SourceURL: url}
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	for k, e := range errs {
		if e != nil {
			r.logFailure(LayerPerceptual, photos[idx[k]], e)
		}
	}

	clusters, err := greedyClusters(ctx, len(photos),
		func(i int) bool { return fps[i].HashHex != "" },
		func(i, j int) (similarity.Score, bool) {
			sim := fps[i].Similarity(fps[j])
			s := similarity.Metadata(photos[i], photos[j], r.p.vocab)
			s.Visual = sim
			s.Overall = similarity.PerceptualWeights.Combine(s)
			r.matrix.Set(photos[i].ID, photos[j].ID, s)
			return s, sim >= r.opts.DHashThreshold
		})
	if err != nil {
		return nil, err
	}

	for _, c := range clusters {
		rep := similarity.Average(c.edges, similarity.PerceptualWeights)
		r.addGroup(pick(photos, c.members), rep, classify(rep), constants.PerceptualConfidence, LayerPerceptual)
	}
	return r.ungrouped(photos), nil
}
