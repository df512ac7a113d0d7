package ocr

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// implements Recognizer using Google Gemini
type GeminiRecognizer struct {
	client  *genai.Client
	model   string
	options Options
}

func NewGeminiRecognizer(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*GeminiRecognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiRecognizer{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (r *GeminiRecognizer) Recognize(ctx context.Context, png []byte) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(BuildPrompt(r.options)),
		genai.NewPartFromBytes(png, "image/png"),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := r.client.Models.GenerateContent(ctx, r.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("recognition failed: %w", err)
	}

	return r.parseResponse(result)
}

func (r *GeminiRecognizer) parseResponse(
	result *genai.GenerateContentResponse,
) (string, error) {
	if result == nil || len(result.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}

	candidate := result.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in Gemini response")
	}

	var responseText string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			responseText += part.Text
		}
	}

	return cleanResponse(responseText), nil
}
