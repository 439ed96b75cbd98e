// Package feature extracts learned visual embeddings from images and finds
// visually similar pairs among them.
package feature

import (
	"context"
	"image"
)

// Tensor is a preprocessed model input: a CHW float32 array normalized with
// ImageNet statistics. Image holds the resized RGB image for back-ends that
// take pixels rather than tensors.
type Tensor struct {
	Data    []float32
	Channel int
	Height  int
	Width   int
	Image   image.Image
}

// Model is a pretrained image embedding model.
type Model interface {
	// Name identifies the model; cached vectors are keyed by it.
	Name() string
	// Load prepares the model for inference.
	Load(ctx context.Context) error
	// Infer returns the raw (unnormalized) embedding for a tensor.
	Infer(ctx context.Context, t *Tensor) ([]float32, error)
	// Close releases model resources.
	Close() error
}

// Vector is an L2-normalized embedding of one photo.
type Vector struct {
	PhotoID          string    `json:"photo_id"`
	Embedding        []float32 `json:"embedding"`
	ImageURL         string    `json:"image_url"`
	ExtractionTimeMs int64     `json:"extraction_time_ms"`
}
