package ocr

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// implements Recognizer using Anthropic Claude
type AnthropicRecognizer struct {
	client  anthropic.Client
	model   anthropic.Model
	options Options
}

func NewAnthropicRecognizer(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*AnthropicRecognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	model := anthropic.Model(opts.Model)
	if opts.Model == "" {
		model = anthropic.ModelClaudeHaiku4_5
	}

	return &AnthropicRecognizer{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (r *AnthropicRecognizer) Recognize(ctx context.Context, png []byte) (string, error) {
	message, err := r.client.Messages.New(
		ctx,
		anthropic.MessageNewParams{
			Model:     r.model,
			MaxTokens: 1024,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(
					anthropic.NewImageBlockBase64(
						"image/png",
						base64.StdEncoding.EncodeToString(png),
					),
					anthropic.NewTextBlock(BuildPrompt(r.options)),
				),
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("recognition failed: %w", err)
	}

	return r.parseResponse(message)
}

func (r *AnthropicRecognizer) parseResponse(
	message *anthropic.Message,
) (string, error) {
	if message == nil || len(message.Content) == 0 {
		return "", fmt.Errorf("empty response from Anthropic")
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	return cleanResponse(responseText), nil
}
