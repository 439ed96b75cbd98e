package caption

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openAIModel = openai.ChatModelGPT4_1Mini

// OpenAIProvider describes photos with the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
	usageTracker
}

// NewOpenAIProvider creates an OpenAI provider. Extra request options are
// passed to the client (for example a custom base URL).
func NewOpenAIProvider(apiKey string, pricing Pricing, opts ...option.RequestOption) *OpenAIProvider {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	p := &OpenAIProvider{client: &client}
	p.pricing = pricing
	return p
}

// Name returns the model name.
func (p *OpenAIProvider) Name() string {
	return openAIModel
}

// Describe returns a one-paragraph description of the image.
func (p *OpenAIProvider) Describe(ctx context.Context, imageData []byte) (string, error) {
	// Resize image to max 800px to save costs
	resized, err := ResizeImage(imageData, maxImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to resize image: %w", err)
	}
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(resized)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openAIModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(describePrompt),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							openai.TextContentPart("Describe this photo."),
							openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
								URL:    imageURL,
								Detail: "low",
							}),
						},
					},
				},
			},
		},
		MaxTokens: openai.Int(maxOutputTokens),
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}

	p.track(int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens))

	description := cleanDescription(resp.Choices[0].Message.Content)
	if description == "" {
		return "", errors.New("empty description from OpenAI")
	}
	return description, nil
}
