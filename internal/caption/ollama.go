package caption

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/resilience"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2-vision:11b"
)

// OllamaProvider describes photos with a local Ollama server.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
	exec    *resilience.Executor
	usageTracker
}

// NewOllamaProvider creates an Ollama provider. exec may be nil.
func NewOllamaProvider(baseURL, model string, exec *resilience.Executor) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
		exec:    exec,
	}
}

// Name returns the model name.
func (p *OllamaProvider) Name() string {
	return p.model
}

// ollamaRequest represents a request to the Ollama chat API
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64 encoded images
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// Describe returns a one-paragraph description of the image.
func (p *OllamaProvider) Describe(ctx context.Context, imageData []byte) (string, error) {
	resized, err := ResizeImage(imageData, maxImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to resize image: %w", err)
	}

	reqBody, err := json.Marshal(ollamaRequest{
		Model: p.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: describePrompt},
			{Role: "user", Content: "Describe this photo.", Images: []string{base64.StdEncoding.EncodeToString(resized)}},
		},
		Options: ollamaOptions{NumPredict: maxOutputTokens},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp ollamaResponse
	err = executeJSON(ctx, p.exec, p.client, "ollama_chat", p.baseURL+"/api/chat", reqBody, &resp)
	if err != nil {
		return "", fmt.Errorf("ollama API error: %w", err)
	}

	// Ollama is free, but we track tokens for stats
	p.track(resp.PromptEvalCount, resp.EvalCount)

	description := cleanDescription(resp.Message.Content)
	if description == "" {
		return "", errors.New("empty description from Ollama")
	}
	return description, nil
}

// executeJSON posts a JSON body and decodes a JSON response, through exec when set.
func executeJSON(ctx context.Context, exec *resilience.Executor, client *http.Client, op, url string, body []byte, out any) error {
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return &resilience.StatusError{Operation: op, StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	}

	if exec == nil {
		return call(ctx)
	}
	return exec.Execute(ctx, op, call, resilience.ClassifyHTTP)
}
