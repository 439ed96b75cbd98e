package cmd

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/feature"
	"github.com/kozaktomas/photo-dedup/internal/fetch"
	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
)

func TestPipelineOptions(t *testing.T) {
	cfg := &config.Config{
		Pipeline: config.PipelineConfig{
			SimilarityThreshold: 0.9,
			ConfidenceThreshold: 0.6,
			DHashSize:           16,
			DHashThreshold:      0.8,
			BatchSize:           4,
			FallbackSampleSize:  10,
			SemanticThreshold:   0.5,
			ImagePurposes:       []string{"original", "bogus", "web"},
		},
	}

	opts := pipelineOptions(cfg)

	if opts.SimilarityThreshold != 0.9 {
		t.Errorf("SimilarityThreshold = %v, want 0.9", opts.SimilarityThreshold)
	}
	if opts.ConfidenceThreshold != 0.6 {
		t.Errorf("ConfidenceThreshold = %v, want 0.6", opts.ConfidenceThreshold)
	}
	if opts.DHashSize != 16 {
		t.Errorf("DHashSize = %d, want 16", opts.DHashSize)
	}
	if opts.BatchSize != 4 {
		t.Errorf("BatchSize = %d, want 4", opts.BatchSize)
	}
	if !opts.EnableContent || !opts.EnableVisual || !opts.EnableSemantic {
		t.Error("expected all layers enabled by default")
	}
	if len(opts.ImagePurposes) != 2 || opts.ImagePurposes[0] != photo.PurposeOriginal || opts.ImagePurposes[1] != photo.PurposeWeb {
		t.Errorf("ImagePurposes = %v, want [original web]", opts.ImagePurposes)
	}
}

func TestNewCaptionProviderErrors(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  string
	}{
		{"openai without token", "openai", "OPENAI_TOKEN"},
		{"gemini without key", "gemini", "GEMINI_API_KEY"},
		{"unknown provider", "clip", "unknown caption provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "")
			t.Setenv("GOOGLE_API_KEY", "")
			cfg := &config.Config{}
			cfg.Caption.Provider = tt.provider

			_, err := newCaptionProvider(context.Background(), cfg, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewCaptionProviderOllama(t *testing.T) {
	cfg := &config.Config{}
	cfg.Caption.Provider = "ollama"
	cfg.Ollama.URL = "http://localhost:11434"
	cfg.Ollama.Model = "llava"

	provider, err := newCaptionProvider(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider == nil {
		t.Fatal("expected provider")
	}
}

func newSourceCommand(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("input", "", "")
	cmd.Flags().String("album", "", "")
	cmd.Flags().String("query", "", "")
	for name, value := range flags {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("failed to set %s: %v", name, err)
		}
	}
	return cmd
}

func TestAnalyzeSourceRequiresExactlyOne(t *testing.T) {
	tests := []struct {
		name  string
		flags map[string]string
	}{
		{"none", map[string]string{}},
		{"input and album", map[string]string{"input": "photos.json", "album": "aq1"}},
		{"album and query", map[string]string{"album": "aq1", "query": "year:2025"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := analyzeSource(context.Background(), newSourceCommand(t, tt.flags), nil)
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestAnalyzeSourceInput(t *testing.T) {
	src, err := analyzeSource(context.Background(), newSourceCommand(t, map[string]string{"input": "photos.json"}), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src == nil {
		t.Fatal("expected JSON file source")
	}
}

func writePNG(t *testing.T, path string, fill func(x, y int) color.Gray) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, fill(x, y))
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

func TestFingerprintImages(t *testing.T) {
	dir := t.TempDir()
	gradient := func(x, _ int) color.Gray { return color.Gray{Y: uint8(x * 8)} }

	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	missing := filepath.Join(dir, "missing.png")
	writePNG(t, a, gradient)
	writePNG(t, b, gradient)

	out := fingerprintImages(context.Background(), fetch.NewClient(fetch.Config{}, nil), []string{a, b, missing})

	if len(out.Images) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(out.Images))
	}
	if out.Images[0].ContentHash == "" || out.Images[0].ContentHash != out.Images[1].ContentHash {
		t.Errorf("identical files should share a content hash: %q vs %q", out.Images[0].ContentHash, out.Images[1].ContentHash)
	}
	if out.Images[0].Width != 32 || out.Images[0].Height != 32 {
		t.Errorf("size = %dx%d, want 32x32", out.Images[0].Width, out.Images[0].Height)
	}
	if out.Images[2].Error == "" {
		t.Error("expected error for missing file")
	}

	if len(out.Pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(out.Pairs))
	}
	if out.Pairs[0].Similarity != 1 {
		t.Errorf("similarity = %v, want 1", out.Pairs[0].Similarity)
	}
}

// countingModel counts Load and Close calls and embeds every image identically.
type countingModel struct {
	mu     sync.Mutex
	loads  int
	closes int
}

func (m *countingModel) Name() string { return "counting" }

func (m *countingModel) Load(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	return nil
}

func (m *countingModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *countingModel) Infer(context.Context, *feature.Tensor) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (m *countingModel) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads, m.closes
}

func TestHeldModelIsReusedAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	writePNG(t, a, func(x, _ int) color.Gray { return color.Gray{Y: uint8(x * 8)} })
	writePNG(t, b, func(x, _ int) color.Gray { return color.Gray{Y: uint8(255 - x*8)} })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	model := &countingModel{}
	d := &deps{
		cfg:       &config.Config{},
		logger:    logger,
		fetcher:   fetch.NewClient(fetch.Config{}, nil),
		extractor: feature.NewExtractor(model, feature.WithLogger(logger)),
	}
	if err := d.holdModel(context.Background()); err != nil {
		t.Fatalf("holdModel: %v", err)
	}

	photos := []*photo.Photo{
		{ID: "a", Images: []photo.ImageURI{{Purpose: photo.PurposeWeb, URL: a}}},
		{ID: "b", Images: []photo.ImageURI{{Purpose: photo.PurposeWeb, URL: b}}},
	}
	opts := pipeline.DefaultOptions()
	opts.EnableContent = false
	opts.EnablePerceptual = false
	opts.EnableMetadata = false
	opts.EnableSemantic = false

	p := d.newPipeline(pipeline.NopTelemetry{})
	for i := range 3 {
		if result := p.Run(context.Background(), photos, opts); !result.Success {
			t.Fatalf("run %d failed: %s", i, result.Error)
		}
	}

	if loads, closes := model.counts(); loads != 1 || closes != 0 {
		t.Errorf("after 3 runs: %d loads, %d closes; want 1 load and no close", loads, closes)
	}

	d.Close()
	if _, closes := model.counts(); closes != 1 {
		t.Errorf("Close should release the model once, got %d closes", closes)
	}
}
