package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/photo-dedup/internal/constants"
	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/similarity"
)

var errNoDescription = errors.New("no description generated")

// sampleEvenly picks n items at an even stride, keeping order.
func sampleEvenly[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	out := make([]T, n)
	for i := range n {
		out[i] = items[i*len(items)/n]
	}
	return out
}

// semanticFallback captions a sample of ungrouped photos and groups those
// with similar descriptions. It returns the number of photos described.
func (r *run) semanticFallback(ctx context.Context) (int, error) {
	if r.p.captioner == nil {
		r.p.logger.Info("semantic fallback skipped, no captioner configured", "run_id", r.id)
		return 0, nil
	}

	var pool []*photo.Photo
	for _, ph := range r.ungrouped(r.photos) {
		if r.url(ph) != "" {
			pool = append(pool, ph)
		}
	}
	sample := sampleEvenly(pool, r.opts.FallbackSampleSize)

	descriptions := make([]string, len(sample))
	idx := make([]int, len(sample))
	for i := range idx {
		idx[i] = i
	}

	errs, err := runBatched(ctx, idx, r.opts.BatchSize, r.opts.BatchDelay, func(ctx context.Context, i int) error {
		desc, ok := r.p.captioner.GenerateDescription(ctx, r.url(sample[i]), sample[i].ID)
		if !ok || strings.TrimSpace(desc) == "" {
			return errNoDescription
		}
		descriptions[i] = desc
		return nil
	}, func(done int) {
		r.reportBetween(progressMetadata, progressGrouping, done, len(sample), string(LayerSemantic),
			fmt.Sprintf("Described %d/%d photos", done, len(sample)))
	})
	if err != nil {
		return 0, err
	}

	described := 0
	for i, e := range errs {
		if e != nil {
			r.p.logger.Debug("photo excluded from semantic fallback", "run_id", r.id, "photo_id", sample[i].ID, "error", e)
			continue
		}
		described++
	}

	clusters, err := greedyClusters(ctx, len(sample),
		func(i int) bool { return descriptions[i] != "" },
		func(i, j int) (similarity.Score, bool) {
			a, b := sample[i], sample[j]
			sim := similarity.DescriptionSimilarity(descriptions[i], descriptions[j], r.p.vocab)
			s := similarity.Metadata(a, b, r.p.vocab)
			s.Semantic = sim
			s.Overall = similarity.SemanticWeights.Combine(s)
			r.matrix.Set(a.ID, b.ID, s)
			return s, sim >= r.opts.SemanticThreshold
		})
	if err != nil {
		return described, err
	}

	for _, c := range clusters {
		rep := similarity.Average(c.edges, similarity.SemanticWeights)
		r.addGroup(pick(sample, c.members), rep, GroupRedundantDocumentation, constants.SemanticConfidence, LayerSemantic)
	}
	return described, nil
}
