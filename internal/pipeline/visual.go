package pipeline

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-dedup/internal/feature"
	"github.com/kozaktomas/photo-dedup/internal/photo"
)

// visualLayer extracts embeddings for photos and marks every photo of a pair
// above the similarity threshold as a candidate. It returns the extracted
// vectors keyed by photo ID.
func (r *run) visualLayer(ctx context.Context, photos []*photo.Photo, candidates map[string]bool) (map[string]*feature.Vector, error) {
	vectors := make(map[string]*feature.Vector)

	ext := r.p.extractor
	if ext == nil {
		r.p.logger.Info("visual layer skipped, no feature extractor configured", "run_id", r.id)
		return vectors, nil
	}
	if err := ext.Init(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := ext.Dispose(); err != nil {
			r.p.logger.Warn("failed to release feature model", "model", ext.ModelName(), "error", err)
		}
	}()

	var idx []int
	for i, ph := range photos {
		if r.url(ph) != "" {
			idx = append(idx, i)
		}
	}

	results := make([]*feature.Vector, len(photos))
	errs, err := runBatched(ctx, idx, r.opts.BatchSize, r.opts.BatchDelay, func(ctx context.Context, i int) error {
		url := r.url(photos[i])
		data, err := r.images.Fetch(ctx, url)
		if err != nil {
			return err
		}
		v, err := ext.Extract(ctx, photos[i].ID, url, data)
		if err != nil {
			return err
		}
		results[i] = v
		return nil
	}, func(done int) {
		r.reportBetween(progressPerceptual, progressVisual, done, len(idx), string(LayerVisual),
			fmt.Sprintf("Extracted features for %d/%d photos", done, len(idx)))
	})
	if err != nil {
		return vectors, err
	}
	for k, e := range errs {
		if e != nil {
			r.logFailure(LayerVisual, photos[idx[k]], e)
		}
	}

	list := make([]feature.Vector, 0, len(idx))
	owners := make([]*photo.Photo, 0, len(idx))
	for i, v := range results {
		if v == nil {
			continue
		}
		list = append(list, *v)
		owners = append(owners, photos[i])
		vectors[photos[i].ID] = v
	}

	for _, pair := range feature.SimilarPairs(list, r.opts.SimilarityThreshold, r.opts.Neighbors) {
		candidates[owners[pair.I].ID] = true
		candidates[owners[pair.J].ID] = true
	}
	return vectors, nil
}
