package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/photo-dedup/internal/feature"
	"github.com/kozaktomas/photo-dedup/internal/fetch"
	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/similarity"
)

// Progress checkpoints reached after each stage.
const (
	progressStart      = 5
	progressContent    = 15
	progressPerceptual = 30
	progressVisual     = 60
	progressMetadata   = 75
	progressGrouping   = 95
)

// run holds the working data of one execution. It is only touched by the
// goroutine executing the run; results are copied into RunState at the end.
type run struct {
	p      *Pipeline
	id     string
	opts   Options
	images fetch.Fetcher
	photos []*photo.Photo

	groups  []Group
	grouped map[string]bool
	matrix  Matrix
	layers  []LayerStat
}

func newRun(p *Pipeline, id string, photos []*photo.Photo, opts Options) *run {
	return &run{
		p:       p,
		id:      id,
		opts:    opts,
		images:  fetch.NewMemo(p.fetcher),
		photos:  slices.Clone(photos),
		groups:  []Group{},
		grouped: make(map[string]bool),
		matrix:  make(Matrix),
	}
}

func (r *run) safeExecute(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.execute(ctx)
}

func (r *run) execute(ctx context.Context) error {
	r.report(progressStart, "starting", fmt.Sprintf("Analyzing %d photos", len(r.photos)))

	survivors := r.photos

	if r.opts.EnableContent {
		err := r.layer(ctx, LayerContent, len(survivors), func() (int, error) {
			var err error
			survivors, err = r.contentLayer(ctx, survivors)
			return len(survivors), err
		})
		if err != nil {
			return err
		}
	}
	r.report(progressContent, string(LayerContent), "Content fingerprints compared")

	if r.opts.EnablePerceptual {
		err := r.layer(ctx, LayerPerceptual, len(survivors), func() (int, error) {
			var err error
			survivors, err = r.perceptualLayer(ctx, survivors)
			return len(survivors), err
		})
		if err != nil {
			return err
		}
	}
	r.report(progressPerceptual, string(LayerPerceptual), "Perceptual hashes compared")

	var vectors map[string]*feature.Vector
	candidates := make(map[string]bool)

	if r.opts.EnableVisual {
		err := r.layer(ctx, LayerVisual, len(survivors), func() (int, error) {
			var err error
			vectors, err = r.visualLayer(ctx, survivors, candidates)
			return len(vectors), err
		})
		if err != nil {
			return err
		}
	}
	r.report(progressVisual, string(LayerVisual), "Visual features compared")

	if r.opts.EnableMetadata {
		err := r.layer(ctx, LayerMetadata, len(survivors), func() (int, error) {
			before := len(candidates)
			err := r.metadataLayer(ctx, survivors, candidates)
			return len(candidates) - before, err
		})
		if err != nil {
			return err
		}
	}
	r.report(progressMetadata, string(LayerMetadata), "Metadata proximity compared")

	ordered := make([]*photo.Photo, 0, len(candidates))
	for _, ph := range survivors {
		if candidates[ph.ID] {
			ordered = append(ordered, ph)
		}
	}

	switch {
	case len(ordered) > 0:
		err := r.layer(ctx, LayerGrouping, len(ordered), func() (int, error) {
			return len(ordered), r.groupCandidates(ctx, ordered, vectors)
		})
		if err != nil {
			return err
		}
	case r.opts.EnableSemantic:
		err := r.layer(ctx, LayerSemantic, len(r.photos)-len(r.grouped), func() (int, error) {
			return r.semanticFallback(ctx)
		})
		if err != nil {
			return err
		}
	}
	r.report(progressGrouping, string(LayerGrouping), fmt.Sprintf("Formed %d groups", len(r.groups)))

	return ctx.Err()
}

// layer runs fn as the named layer. Telemetry is emitted only for layers
// that finish without cancellation.
func (r *run) layer(ctx context.Context, name Layer, input int, fn func() (int, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	groupsBefore := len(r.groups)
	output, err := fn()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("%s layer: %w", name, err)
	}

	elapsed := time.Since(start)
	stat := LayerStat{
		Layer:      name,
		Input:      input,
		Output:     output,
		Groups:     len(r.groups) - groupsBefore,
		Duration:   elapsed,
		DurationMs: elapsed.Milliseconds(),
	}
	r.layers = append(r.layers, stat)
	r.p.telemetry.LayerCompleted(r.id, stat)
	r.p.SendEvent(Event{Type: EventLayer, Message: string(name), Data: stat})
	return nil
}

func (r *run) report(percent int, stage, message string) {
	pr := Progress{Percent: percent, Stage: stage, Message: message}
	r.p.setProgress(pr)
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(pr)
	}
	r.p.SendEvent(Event{Type: EventProgress, Message: message, Data: pr})
}

// reportBetween maps done/total onto the progress range [from, to).
func (r *run) reportBetween(from, to, done, total int, stage, message string) {
	if total <= 0 {
		return
	}
	r.report(from+(to-from)*done/total, stage, message)
}

func (r *run) url(ph *photo.Photo) string {
	return ph.URL(r.opts.ImagePurposes...)
}

// ungrouped returns photos not yet placed in a group, in input order.
func (r *run) ungrouped(photos []*photo.Photo) []*photo.Photo {
	out := make([]*photo.Photo, 0, len(photos))
	for _, ph := range photos {
		if !r.grouped[ph.ID] {
			out = append(out, ph)
		}
	}
	return out
}

func (r *run) addGroup(members []*photo.Photo, rep similarity.Score, groupType GroupType, confidence float64, layer Layer) {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
		r.grouped[m.ID] = true
	}
	r.groups = append(r.groups, Group{
		ID:                  uuid.NewString(),
		Photos:              ids,
		RepresentativeScore: rep,
		GroupType:           groupType,
		Confidence:          similarity.Clamp01(confidence),
		Layer:               layer,
	})
}

func (r *run) logFailure(layer Layer, ph *photo.Photo, err error) {
	fetch.LogFailure(r.p.logger.With("layer", layer, "run_id", r.id), ph.ID, r.url(ph), err)
}
