// Package caption generates natural-language descriptions of photos using
// vision-capable language models.
package caption

import (
	"context"
	_ "embed"
	"strings"
	"sync"
)

//go:embed prompts/describe.txt
var describePrompt string

// maxImageSize is the longest edge sent to a provider.
const maxImageSize = 800

// maxOutputTokens bounds the length of a single description.
const maxOutputTokens = 200

// Provider describes a single image.
type Provider interface {
	Name() string
	Describe(ctx context.Context, imageData []byte) (string, error)
	Usage() Usage
}

// Pricing holds input/output prices per 1M tokens.
type Pricing struct {
	Input  float64
	Output float64
}

// Usage tracks token usage and calculated cost.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost_usd"`
}

// usageTracker accumulates usage from concurrent requests.
type usageTracker struct {
	mu      sync.Mutex
	usage   Usage
	pricing Pricing
}

func (u *usageTracker) track(inputTokens, outputTokens int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage.InputTokens += inputTokens
	u.usage.OutputTokens += outputTokens
	u.usage.TotalCost += float64(inputTokens) / 1_000_000 * u.pricing.Input
	u.usage.TotalCost += float64(outputTokens) / 1_000_000 * u.pricing.Output
}

// Usage returns a copy of the accumulated usage.
func (u *usageTracker) Usage() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.usage
}

// cleanDescription trims quotes, markdown and whitespace models like to add.
func cleanDescription(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	s = strings.TrimPrefix(s, "Description:")
	return strings.Join(strings.Fields(s), " ")
}
