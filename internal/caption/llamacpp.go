package caption

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/resilience"
)

const (
	defaultLlamaCppURL   = "http://localhost:8080"
	defaultLlamaCppModel = "llava"
)

// LlamaCppProvider describes photos with a llama.cpp server's OpenAI-compatible API.
type LlamaCppProvider struct {
	parsedURL *url.URL
	model     string
	client    *http.Client
	exec      *resilience.Executor
	usageTracker
}

// NewLlamaCppProvider creates a llama.cpp provider. exec may be nil.
func NewLlamaCppProvider(baseURL, model string, exec *resilience.Executor) (*LlamaCppProvider, error) {
	if baseURL == "" {
		baseURL = defaultLlamaCppURL
	}
	if model == "" {
		model = defaultLlamaCppModel
	}
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid llama.cpp URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid llama.cpp URL scheme %q: must be http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("invalid llama.cpp URL: missing host")
	}
	return &LlamaCppProvider{
		parsedURL: parsed,
		model:     model,
		client:    &http.Client{Timeout: 5 * time.Minute},
		exec:      exec,
	}, nil
}

// Name returns the model name.
func (p *LlamaCppProvider) Name() string {
	return p.model
}

type llamaCppRequest struct {
	Model       string            `json:"model"`
	Messages    []llamaCppMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	Stream      bool              `json:"stream"`
}

type llamaCppMessage struct {
	Role    string         `json:"role"`
	Content []llamaCppPart `json:"content"`
}

type llamaCppPart struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *llamaCppImageURL `json:"image_url,omitempty"`
}

type llamaCppImageURL struct {
	URL string `json:"url"`
}

type llamaCppResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Describe returns a one-paragraph description of the image.
func (p *LlamaCppProvider) Describe(ctx context.Context, imageData []byte) (string, error) {
	resized, err := ResizeImage(imageData, maxImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to resize image: %w", err)
	}

	reqBody, err := json.Marshal(llamaCppRequest{
		Model: p.model,
		Messages: []llamaCppMessage{
			{Role: "system", Content: []llamaCppPart{{Type: "text", Text: describePrompt}}},
			{Role: "user", Content: []llamaCppPart{
				{Type: "text", Text: "Describe this photo."},
				{Type: "image_url", ImageURL: &llamaCppImageURL{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(resized),
				}},
			}},
		},
		MaxTokens:   maxOutputTokens,
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp llamaCppResponse
	reqURL := p.parsedURL.JoinPath("/v1/chat/completions")
	if err := executeJSON(ctx, p.exec, p.client, "llamacpp_chat", reqURL.String(), reqBody, &resp); err != nil {
		return "", fmt.Errorf("llama.cpp API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from llama.cpp")
	}

	p.track(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	description := cleanDescription(resp.Choices[0].Message.Content)
	if description == "" {
		return "", errors.New("empty description from llama.cpp")
	}
	return description, nil
}
