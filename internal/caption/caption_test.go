package caption

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openai/openai-go/option"

	"github.com/kozaktomas/photo-dedup/internal/resilience"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func TestResizeImage(t *testing.T) {
	tests := []struct {
		name             string
		width, height    int
		maxSize          int
		expectW, expectH int
	}{
		{"no resize needed", 100, 100, 200, 100, 100},
		{"landscape", 1600, 800, 800, 800, 400},
		{"portrait", 600, 1200, 800, 400, 800},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := encodeJPEG(createTestImage(tc.width, tc.height, color.White))
			resized, err := ResizeImage(data, tc.maxSize)
			if err != nil {
				t.Fatalf("ResizeImage failed: %v", err)
			}
			img, format, err := image.Decode(bytes.NewReader(resized))
			if err != nil {
				t.Fatalf("failed to decode result: %v", err)
			}
			if format != "jpeg" {
				t.Errorf("expected jpeg format, got %s", format)
			}
			if img.Bounds().Dx() != tc.expectW || img.Bounds().Dy() != tc.expectH {
				t.Errorf("got %dx%d; want %dx%d", img.Bounds().Dx(), img.Bounds().Dy(), tc.expectW, tc.expectH)
			}
		})
	}

	if _, err := ResizeImage([]byte("nope"), 800); err == nil {
		t.Error("expected error for invalid image")
	}
}

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  \"A kitchen with new cabinets.\"  ", "A kitchen with new cabinets."},
		{"Description: Tiles\n\non a wall", "Tiles on a wall"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := cleanDescription(tc.in); got != tc.want {
			t.Errorf("cleanDescription(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestUsageTracker(t *testing.T) {
	var u usageTracker
	u.pricing = Pricing{Input: 1.0, Output: 2.0}
	u.track(1_000_000, 500_000)
	got := u.Usage()
	if got.InputTokens != 1_000_000 || got.OutputTokens != 500_000 || got.TotalCost != 2.0 {
		t.Errorf("unexpected usage %+v", got)
	}
}

func TestOllamaProviderDescribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Messages) != 2 || len(req.Messages[1].Images) != 1 || req.Stream {
			http.Error(w, "bad request shape", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":" Fresh drywall in a bedroom. "},"done":true,"prompt_eval_count":10,"eval_count":5}`))
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llava", nil)
	got, err := p.Describe(context.Background(), encodeJPEG(createTestImage(20, 20, color.White)))
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if got != "Fresh drywall in a bedroom." {
		t.Errorf("Describe = %q", got)
	}
	if u := p.Usage(); u.InputTokens != 10 || u.OutputTokens != 5 {
		t.Errorf("unexpected usage %+v", u)
	}
}

func TestOllamaProviderRetriesUnavailable(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"message":{"content":"ok"}}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
	}, nil)
	p := NewOllamaProvider(server.URL, "", exec)
	if _, err := p.Describe(context.Background(), encodeJPEG(createTestImage(8, 8, color.Black))); err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestLlamaCppProviderDescribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Tiled bathroom floor."}}],"usage":{"prompt_tokens":3,"completion_tokens":4}}`))
	}))
	defer server.Close()

	p, err := NewLlamaCppProvider(server.URL, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Describe(context.Background(), encodeJPEG(createTestImage(8, 8, color.White)))
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if got != "Tiled bathroom floor." {
		t.Errorf("Describe = %q", got)
	}
}

func TestNewLlamaCppProviderValidation(t *testing.T) {
	for _, u := range []string{"ftp://host", "http://"} {
		if _, err := NewLlamaCppProvider(u, "", nil); err == nil {
			t.Errorf("expected error for %q", u)
		}
	}
}

func TestOpenAIProviderDescribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"gpt-4.1-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Roof trusses being installed."}}],
			"usage":{"prompt_tokens":100,"completion_tokens":10,"total_tokens":110}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", Pricing{Input: 1, Output: 1},
		option.WithBaseURL(server.URL), option.WithMaxRetries(0))
	got, err := p.Describe(context.Background(), encodeJPEG(createTestImage(8, 8, color.White)))
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if got != "Roof trusses being installed." {
		t.Errorf("Describe = %q", got)
	}
	if u := p.Usage(); u.InputTokens != 100 || u.OutputTokens != 10 {
		t.Errorf("unexpected usage %+v", u)
	}
}

type stubProvider struct {
	description string
	err         error
}

func (s *stubProvider) Name() string { return "stub" }
func (s *stubProvider) Describe(context.Context, []byte) (string, error) {
	return s.description, s.err
}
func (s *stubProvider) Usage() Usage { return Usage{} }

type stubFetcher struct{ err error }

func (f stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	return []byte("img"), f.err
}

func TestCaptionerGenerateDescription(t *testing.T) {
	ctx := context.Background()

	c := NewCaptioner(&stubProvider{description: "a porch"}, stubFetcher{}, nil)
	if got, ok := c.GenerateDescription(ctx, "http://x", "p1"); !ok || got != "a porch" {
		t.Errorf("GenerateDescription = %q, %v", got, ok)
	}

	c = NewCaptioner(&stubProvider{err: errors.New("down")}, stubFetcher{}, nil)
	if _, ok := c.GenerateDescription(ctx, "http://x", "p1"); ok {
		t.Error("provider failure should yield ok=false")
	}

	c = NewCaptioner(&stubProvider{description: "x"}, stubFetcher{err: errors.New("404")}, nil)
	if _, ok := c.GenerateDescription(ctx, "http://x", "p1"); ok {
		t.Error("fetch failure should yield ok=false")
	}
}
