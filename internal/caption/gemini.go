package caption

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// GeminiProvider describes photos with the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	usageTracker
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(ctx context.Context, apiKey string, pricing Pricing) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	p := &GeminiProvider{client: client}
	p.pricing = pricing
	return p, nil
}

// Name returns the model name.
func (p *GeminiProvider) Name() string {
	return geminiModel
}

// Describe returns a one-paragraph description of the image.
func (p *GeminiProvider) Describe(ctx context.Context, imageData []byte) (string, error) {
	resized, err := ResizeImage(imageData, maxImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to resize image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: describePrompt},
				{InlineData: &genai.Blob{Data: resized, MIMEType: "image/jpeg"}},
			},
		},
	}

	result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: maxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	if result.UsageMetadata != nil {
		p.track(int(result.UsageMetadata.PromptTokenCount), int(result.UsageMetadata.CandidatesTokenCount))
	}

	description := cleanDescription(result.Text())
	if description == "" {
		return "", errors.New("no response from Gemini")
	}
	return description, nil
}
