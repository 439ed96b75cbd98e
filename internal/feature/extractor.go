package feature

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

// ErrNotInitialized is returned by Extract when no reference holds the model.
var ErrNotInitialized = errors.New("feature extractor not initialized")

// Cache stores embeddings keyed by image content hash and model name.
type Cache interface {
	Get(ctx context.Context, contentHash, model string) ([]float32, bool, error)
	Put(ctx context.Context, contentHash, model string, embedding []float32) error
}

// Extractor owns a Model shared by the whole process. Init and Dispose count
// references: the model is loaded on the first Init and closed when the last
// reference is disposed.
type Extractor struct {
	model     Model
	cache     Cache
	inputSize int
	logger    *slog.Logger

	mu   sync.Mutex
	refs int
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithCache consults and fills cache around inference.
func WithCache(cache Cache) ExtractorOption {
	return func(e *Extractor) { e.cache = cache }
}

// WithInputSize overrides the square model input size.
func WithInputSize(size int) ExtractorOption {
	return func(e *Extractor) { e.inputSize = size }
}

// WithLogger sets the logger used for cache warnings.
func WithLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = logger }
}

// NewExtractor creates an extractor around model. The model is not loaded until Init.
func NewExtractor(model Model, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		model:     model,
		inputSize: DefaultInputSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ModelName returns the name of the wrapped model.
func (e *Extractor) ModelName() string {
	return e.model.Name()
}

// Init acquires a reference, loading the model if this is the first one.
func (e *Extractor) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refs == 0 {
		if err := e.model.Load(ctx); err != nil {
			return fmt.Errorf("failed to load model %s: %w", e.model.Name(), err)
		}
	}
	e.refs++
	return nil
}

// Dispose releases a reference, closing the model when none remain.
func (e *Extractor) Dispose() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refs == 0 {
		return nil
	}
	e.refs--
	if e.refs == 0 {
		if err := e.model.Close(); err != nil {
			return fmt.Errorf("failed to close model %s: %w", e.model.Name(), err)
		}
	}
	return nil
}

// Loaded reports whether the model is currently held by at least one reference.
func (e *Extractor) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs > 0
}

// Extract computes the normalized embedding for image bytes belonging to photoID.
func (e *Extractor) Extract(ctx context.Context, photoID, imageURL string, data []byte) (*Vector, error) {
	if !e.Loaded() {
		return nil, ErrNotInitialized
	}

	start := time.Now()
	modelName := e.model.Name()

	var key string
	if e.cache != nil {
		key = fingerprint.ContentHash(data)
		cached, ok, err := e.cache.Get(ctx, key, modelName)
		if err != nil {
			e.logger.Warn("feature cache lookup failed", "photo_id", photoID, "error", err)
		} else if ok {
			return &Vector{
				PhotoID:          photoID,
				Embedding:        Normalize(cached),
				ImageURL:         imageURL,
				ExtractionTimeMs: time.Since(start).Milliseconds(),
			}, nil
		}
	}

	tensor, err := Preprocess(data, e.inputSize)
	if err != nil {
		return nil, fmt.Errorf("preprocess %s: %w", photoID, err)
	}

	embedding, err := e.model.Infer(ctx, tensor)
	if err != nil {
		return nil, fmt.Errorf("infer %s: %w", photoID, err)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("infer %s: empty embedding", photoID)
	}
	embedding = Normalize(embedding)

	if e.cache != nil {
		if err := e.cache.Put(ctx, key, modelName, embedding); err != nil {
			e.logger.Warn("feature cache store failed", "photo_id", photoID, "error", err)
		}
	}

	return &Vector{
		PhotoID:          photoID,
		Embedding:        embedding,
		ImageURL:         imageURL,
		ExtractionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}
