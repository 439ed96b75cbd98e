package feature

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/resilience"
)

const (
	defaultEmbeddingURL   = "http://localhost:8000"
	defaultEmbeddingModel = "clip"
)

// HTTPModel computes image embeddings on an external embedding server.
type HTTPModel struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
	exec    *resilience.Executor
}

// NewHTTPModel creates a model backed by the embedding server at baseURL.
// dim, when positive, is the expected embedding length. exec may be nil.
func NewHTTPModel(baseURL, model string, dim int, exec *resilience.Executor) *HTTPModel {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &HTTPModel{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		dim:     dim,
		client:  &http.Client{Timeout: 2 * time.Minute},
		exec:    exec,
	}
}

// embeddingResponse represents the response from the embedding server
type embeddingResponse struct {
	Dim        int       `json:"dim"`
	Embedding  []float32 `json:"embedding"`
	Model      string    `json:"model"`
	Pretrained string    `json:"pretrained"`
}

// Name returns the model name.
func (m *HTTPModel) Name() string {
	return m.model
}

// Load checks that the embedding server is reachable.
func (m *HTTPModel) Load(ctx context.Context) error {
	return m.do(ctx, "embedding_health", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/health", nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := m.client.Do(req)
		if err != nil {
			return fmt.Errorf("embedding server unreachable: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &resilience.StatusError{Operation: "embedding health", StatusCode: resp.StatusCode, Body: string(body)}
		}
		return nil
	})
}

// Infer sends the tensor's resized image to the embedding server.
func (m *HTTPModel) Infer(ctx context.Context, t *Tensor) ([]float32, error) {
	if t == nil || t.Image == nil {
		return nil, errors.New("tensor has no image")
	}

	var img bytes.Buffer
	if err := jpeg.Encode(&img, t.Image, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	var embedding []float32
	err := m.do(ctx, "embedding_infer", func(ctx context.Context) error {
		body, err := m.postMultipartImage(ctx, "/embed/image", img.Bytes())
		if err != nil {
			return err
		}

		var embResp embeddingResponse
		if err := json.Unmarshal(body, &embResp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		if len(embResp.Embedding) == 0 {
			return errors.New("empty embedding returned")
		}
		if m.dim > 0 && len(embResp.Embedding) != m.dim {
			return fmt.Errorf("embedding dimension %d, expected %d", len(embResp.Embedding), m.dim)
		}
		embedding = embResp.Embedding
		return nil
	})
	return embedding, err
}

// Close is a no-op; the server owns the model weights.
func (m *HTTPModel) Close() error {
	return nil
}

func (m *HTTPModel) do(ctx context.Context, op string, fn func(context.Context) error) error {
	if m.exec == nil {
		return fn(ctx)
	}
	return m.exec.Execute(ctx, op, fn, resilience.ClassifyHTTP)
}

// postMultipartImage posts JPEG bytes as the "file" form field.
func (m *HTTPModel) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &resilience.StatusError{Operation: "embed image", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
