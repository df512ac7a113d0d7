// Package ocr turns subtitle bitmaps into text with a vision model.
package ocr

import (
	"context"
	"fmt"
	"strings"
)

// interface for image text recognition
type Recognizer interface {
	// Recognize returns the text shown in a PNG image, or "" when there is none.
	Recognize(ctx context.Context, png []byte) (string, error)
}

// recognition service provider
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ParseProvider accepts a provider name as typed on the command line.
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(name))); p {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported OCR provider: %s", name)
	}
}

// APIKeyEnv names the environment variable holding the provider's key.
func (p Provider) APIKeyEnv() string {
	switch p {
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	}
	return ""
}

type Options struct {
	Model    string
	Language string // expected language of the text, optional
	Prompt   string // extra instructions appended to the prompt
}

// creates Recognizer based on provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (Recognizer, error) {
	switch provider {
	case ProviderGemini:
		return NewGeminiRecognizer(ctx, apiKey, opts)
	case ProviderOpenAI:
		return NewOpenAIRecognizer(ctx, apiKey, opts)
	case ProviderAnthropic:
		return NewAnthropicRecognizer(ctx, apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported OCR provider: %s", provider)
	}
}

// BuildPrompt creates the recognition prompt sent along with each image
func BuildPrompt(opts Options) string {
	var sb strings.Builder

	if opts.Language != "" {
		sb.WriteString(fmt.Sprintf(
			"The image is a %s subtitle rendered as dark text on a white background.\n\n",
			opts.Language,
		))
	} else {
		sb.WriteString(
			"The image is a subtitle rendered as dark text on a white background.\n\n",
		)
	}

	sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
	sb.WriteString("1. Transcribe the text exactly as shown.\n")
	sb.WriteString("2. Keep the line breaks of the image.\n")
	sb.WriteString("3. Wrap italic text in <i> and </i>.\n")
	sb.WriteString(fmt.Sprintf(
		"4. If the image contains no text, reply with %s only.\n",
		noTextMarker,
	))
	sb.WriteString("5. Do not add any explanation or markdown formatting.\n")

	if opts.Prompt != "" {
		sb.WriteString(
			fmt.Sprintf("\nAdditional instructions: %s\n", opts.Prompt),
		)
	}

	return sb.String()
}

const noTextMarker = "NO_TEXT"

// cleanResponse strips markdown fences and the no-text marker
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	s = strings.TrimSpace(s)
	if s == noTextMarker {
		return ""
	}

	// normalize line endings and drop blank lines; SRT cues end at one
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
