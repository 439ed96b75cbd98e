// Package pipeline groups similar photos with a cascade of similarity layers:
// content hashes, perceptual hashes, visual embeddings, metadata proximity
// and, when nothing else produced candidates, caption similarity.
//
// Grouping is greedy and seed-based, so it is not transitive: a photo similar
// to a group member but not to the seed stays outside the group.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/photo-dedup/internal/feature"
	"github.com/kozaktomas/photo-dedup/internal/fetch"
	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/similarity"
)

// User-facing run errors.
var (
	ErrNotEnoughPhotos = errors.New("Need at least 2 photos to analyze") //nolint:staticcheck // shown to users as is
	ErrCancelled       = errors.New("Analysis cancelled by user")        //nolint:staticcheck // shown to users as is
	ErrRunInProgress   = errors.New("analysis already in progress")
	ErrInvalidPhotos   = errors.New("invalid photos")
)

// Captioner produces a natural-language description of a photo. It reports
// false when no description could be generated.
type Captioner interface {
	GenerateDescription(ctx context.Context, url, photoID string) (string, bool)
}

// Pipeline owns the run state machine. One run executes at a time.
type Pipeline struct {
	EventBroadcaster

	fetcher   fetch.Fetcher
	extractor *feature.Extractor
	captioner Captioner
	vocab     similarity.Vocabulary
	telemetry Telemetry
	logger    *slog.Logger

	mu     sync.RWMutex
	state  RunState
	cancel context.CancelFunc
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExtractor enables the visual layer.
func WithExtractor(e *feature.Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithCaptioner enables the semantic fallback.
func WithCaptioner(c Captioner) Option {
	return func(p *Pipeline) { p.captioner = c }
}

// WithVocabulary sets the domain terms that boost description similarity.
func WithVocabulary(v similarity.Vocabulary) Option {
	return func(p *Pipeline) { p.vocab = v }
}

// WithTelemetry sets the run observer.
func WithTelemetry(t Telemetry) Option {
	return func(p *Pipeline) { p.telemetry = t }
}

// WithLogger sets the logger used for per-item failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline that loads images through fetcher.
func New(fetcher fetch.Fetcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher: fetcher,
		state:   idleState(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.telemetry == nil {
		p.telemetry = NewLogTelemetry(p.logger)
	}
	return p
}

// Run analyzes photos and blocks until the run ends. It never returns an
// error; the outcome is described by the Result.
func (p *Pipeline) Run(ctx context.Context, photos []*photo.Photo, opts Options) Result {
	r, runCtx, err := p.begin(ctx, photos, opts)
	if err != nil {
		return Result{Success: false, Error: err.Error(), State: p.State()}
	}
	p.execute(runCtx, r)
	return p.result()
}

// Start begins a run in the background. It returns ErrRunInProgress when a
// run is already executing, ErrNotEnoughPhotos for fewer than two photos and
// an error wrapping ErrInvalidPhotos for nil photos or missing or repeated IDs.
func (p *Pipeline) Start(ctx context.Context, photos []*photo.Photo, opts Options) error {
	r, runCtx, err := p.begin(ctx, photos, opts)
	if err != nil {
		return err
	}
	go p.execute(runCtx, r)
	return nil
}

// Cancel requests cancellation of the current run. Image fetches and model
// calls already in flight finish before the run stops.
func (p *Pipeline) Cancel() {
	p.mu.RLock()
	cancel := p.cancel
	p.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Clear discards the last run's results.
func (p *Pipeline) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.IsAnalyzing {
		return ErrRunInProgress
	}
	p.state = idleState()
	return nil
}

// State returns a deep copy of the current run state.
func (p *Pipeline) State() RunState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.clone()
}

// IsAnalyzing reports whether a run is executing.
func (p *Pipeline) IsAnalyzing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.IsAnalyzing
}

// SimilarityScore returns the score the last run recorded for a pair.
func (p *Pipeline) SimilarityScore(a, b string) (similarity.Score, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.SimilarityMatrix.Get(a, b)
}

// GroupForPhoto returns the group of the last run that contains photoID.
// All groups are searched, including those below the confidence threshold.
func (p *Pipeline) GroupForPhoto(photoID string) (Group, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, g := range p.state.AllGroups {
		if g.Contains(photoID) {
			return cloneGroups([]Group{g})[0], true
		}
	}
	return Group{}, false
}

func (p *Pipeline) result() Result {
	state := p.State()
	return Result{
		Success: state.Status == StatusCompleted,
		Error:   state.Error,
		State:   state,
	}
}

// validateInput rejects inputs that must not reach any layer.
func validateInput(photos []*photo.Photo) error {
	if len(photos) < 2 {
		return ErrNotEnoughPhotos
	}
	if err := photo.Validate(photos); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPhotos, err)
	}
	return nil
}

// begin validates input and transitions to running. Rejected input moves the
// pipeline to the failed state and is returned as the error.
func (p *Pipeline) begin(ctx context.Context, photos []*photo.Photo, opts Options) (*run, context.Context, error) {
	p.mu.Lock()

	if p.state.IsAnalyzing {
		p.mu.Unlock()
		return nil, nil, ErrRunInProgress
	}

	now := time.Now()
	id := uuid.NewString()
	if err := validateInput(photos); err != nil {
		p.state = idleState()
		p.state.RunID = id
		p.state.Status = StatusFailed
		p.state.Error = err.Error()
		p.state.PhotoCount = len(photos)
		p.state.StartedAt = &now
		p.state.CompletedAt = &now
		p.mu.Unlock()

		p.reject(id, len(photos), err)
		return nil, nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	r := newRun(p, id, photos, opts.withDefaults())
	p.state = idleState()
	p.state.RunID = r.id
	p.state.Status = StatusRunning
	p.state.IsAnalyzing = true
	p.state.PhotoCount = len(photos)
	p.state.Stage = "starting"
	p.state.StartedAt = &now
	p.mu.Unlock()
	return r, runCtx, nil
}

// reject reports an input error the same way as a failed run.
func (p *Pipeline) reject(runID string, photos int, err error) {
	p.telemetry.RunStarted(runID, photos)
	p.telemetry.RunFailed(runID, err)
	p.telemetry.RunFinished(runID, StatusFailed, 0, 0)
	p.SendEvent(Event{Type: EventFailed, Message: err.Error()})
}

func (p *Pipeline) execute(ctx context.Context, r *run) {
	start := time.Now()
	p.telemetry.RunStarted(r.id, len(r.photos))
	p.SendEvent(Event{Type: EventStart, Message: fmt.Sprintf("Analyzing %d photos", len(r.photos))})

	err := r.safeExecute(ctx)
	p.finish(ctx, r, err, time.Since(start))
}

func (p *Pipeline) finish(ctx context.Context, r *run, err error, elapsed time.Duration) {
	now := time.Now()
	cancelled := err != nil && ctx.Err() != nil

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	s := &p.state
	s.IsAnalyzing = false
	s.CompletedAt = &now
	s.AllGroups = r.groups
	s.FilteredGroups = filterByConfidence(r.groups, r.opts.ConfidenceThreshold)
	s.SimilarityMatrix = r.matrix
	s.Layers = r.layers

	var event Event
	switch {
	case cancelled:
		s.Status = StatusCancelled
		s.Error = ErrCancelled.Error()
		event = Event{Type: EventCancelled, Message: s.Error}
	case err != nil:
		s.Status = StatusFailed
		s.Error = err.Error()
		event = Event{Type: EventFailed, Message: s.Error}
	default:
		s.Status = StatusCompleted
		s.Progress = 100
		s.Stage = "completed"
		event = Event{Type: EventCompleted, Message: fmt.Sprintf("Found %d groups", len(s.FilteredGroups)), Data: map[string]int{
			"all_groups":      len(s.AllGroups),
			"filtered_groups": len(s.FilteredGroups),
		}}
	}
	status := s.Status
	groups := len(s.FilteredGroups)
	p.mu.Unlock()

	if status == StatusFailed {
		p.telemetry.RunFailed(r.id, err)
	}
	p.telemetry.RunFinished(r.id, status, groups, elapsed)
	if status == StatusCompleted {
		r.report(100, "completed", "Analysis complete")
	}
	p.SendEvent(event)
}

func (p *Pipeline) setProgress(pr Progress) {
	p.mu.Lock()
	if pr.Percent < p.state.Progress {
		pr.Percent = p.state.Progress
	}
	p.state.Progress = pr.Percent
	p.state.Stage = pr.Stage
	p.mu.Unlock()
}
