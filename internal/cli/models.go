package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/mgpai22/subtools/internal/config"
	"github.com/mgpai22/subtools/internal/ocr"
	"github.com/spf13/cobra"
)

var geminiModels = []string{
	"gemini-3-pro-preview",
	"gemini-3-flash-preview",
	"gemini-2.5-pro",
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
}

var openAIModels = []string{
	"o1", "o3-mini", "o1-pro", "o3",
	"gpt-5", "gpt-5-nano", "gpt-5-mini", "gpt-5-pro",
	"gpt-5.1", "gpt-5.2", "gpt-5.2-pro",
}

func isValidModel(provider ocr.Provider, model string) bool {
	var models []string
	switch provider {
	case ocr.ProviderGemini:
		models = geminiModels
	case ocr.ProviderOpenAI:
		models = openAIModels
	default:
		// Anthropic model names are passed through
		return true
	}
	model = strings.ToLower(strings.TrimSpace(model))
	for _, m := range models {
		if m == model {
			return true
		}
	}
	return false
}

func addOCRFlags(cmd *cobra.Command) {
	cmd.Flags().
		String("provider", "", "OCR provider (gemini, openai, anthropic)")
	cmd.Flags().
		StringP("api-key", "k", "", "API key (or set GEMINI_API_KEY/OPENAI_API_KEY/ANTHROPIC_API_KEY env var)")
	cmd.Flags().
		String("model", "", "Model to use for OCR (provider-specific, uses sensible defaults)")
	cmd.Flags().
		Bool("model-override", false, "Allow any custom model, bypassing provider model validation")
	cmd.Flags().
		String("ocr-language", "", "Expected language of the subtitle text (e.g., english)")
	cmd.Flags().
		String("prompt", "", "Additional instructions for the OCR model")
}

// newRecognizer builds a recognizer from the config, overridden by flags.
func newRecognizer(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (ocr.Recognizer, error) {
	overrides := map[string]*string{
		"provider":     &cfg.OCR.Provider,
		"api-key":      &cfg.OCR.APIKey,
		"model":        &cfg.OCR.Model,
		"ocr-language": &cfg.OCR.Language,
		"prompt":       &cfg.OCR.Prompt,
	}
	for name, dst := range overrides {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}
	modelOverride, _ := cmd.Flags().GetBool("model-override")

	provider, err := ocr.ParseProvider(cfg.OCR.Provider)
	if err != nil {
		return nil, err
	}

	apiKey := cfg.OCRAPIKey(provider)
	if apiKey == "" {
		return nil, fmt.Errorf(
			"API key is required: use --api-key flag or set %s environment variable",
			provider.APIKeyEnv(),
		)
	}

	if cfg.OCR.Model != "" && !modelOverride && !isValidModel(provider, cfg.OCR.Model) {
		return nil, fmt.Errorf(
			"unsupported %s model %q (use --model-override to bypass)",
			provider,
			cfg.OCR.Model,
		)
	}

	logger.Infow("Using OCR provider",
		"provider", provider,
		"model", cfg.OCR.Model,
		"language", cfg.OCR.Language,
	)

	rec, err := ocr.Factory(ctx, provider, apiKey, ocr.Options{
		Model:    cfg.OCR.Model,
		Language: cfg.OCR.Language,
		Prompt:   cfg.OCR.Prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer: %w", err)
	}
	return rec, nil
}
