package llm

import (
	"context"
	"fmt"
)

// Supported provider names.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// OpenRouterBaseURL is the OpenAI-compatible endpoint of OpenRouter.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
}

// New builds the client for the configured provider.
func New(ctx context.Context, cfg ProviderConfig) (Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	case ProviderOpenRouter:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = OpenRouterBaseURL
		}
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: baseURL})
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
