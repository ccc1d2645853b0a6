package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Config selects a provider and carries its credentials.
type Config struct {
	Provider string // "gemini", "openai", "anthropic"
	Model    string
	APIKey   string
	Endpoint string // OpenAI-compatible endpoints only
}

// NewFromConfig builds the TextGenerator the configuration asks for.
func NewFromConfig(ctx context.Context, cfg Config, logger *zap.Logger) (TextGenerator, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, logger)
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Endpoint, cfg.Model, logger)
	case "anthropic":
		return NewAnthropicClient(cfg.APIKey, cfg.Model, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
