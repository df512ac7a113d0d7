package ocr

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// implements Recognizer using OpenAI chat completions with image input
type OpenAIRecognizer struct {
	client  openai.Client
	model   string
	options Options
}

func NewOpenAIRecognizer(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*OpenAIRecognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	model := opts.Model
	if model == "" {
		model = "gpt-5-mini"
	}

	return &OpenAIRecognizer{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (r *OpenAIRecognizer) Recognize(ctx context.Context, png []byte) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	completion, err := r.client.Chat.Completions.New(
		ctx,
		openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
					openai.TextContentPart(BuildPrompt(r.options)),
					openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL:    dataURL,
						Detail: "high",
					}),
				}),
			},
			Model: r.model,
		},
	)
	if err != nil {
		return "", fmt.Errorf("recognition failed: %w", err)
	}

	return r.parseResponse(completion)
}

func (r *OpenAIRecognizer) parseResponse(
	completion *openai.ChatCompletion,
) (string, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}

	return cleanResponse(completion.Choices[0].Message.Content), nil
}
