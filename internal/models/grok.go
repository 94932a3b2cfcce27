package models

import (
	"context"
	"fmt"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const grokBaseURL = "https://api.x.ai/v1"

// NewGrokModel creates a new Grok model instance
//
// It uses the provided context and configuration to initialize the underlying
// OpenAI-compatible client. The modelName specifies which Grok model to target
// (e.g., "grok-3-mini").
func NewGrokModel(ctx context.Context, modelName string, cfg *genai.ClientConfig) (model.LLM, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	baseURL := baseURLFrom(cfg)
	if baseURL == "" {
		baseURL = grokBaseURL
	}
	return newCompatibleModel(modelName, compatibleConfig{
		provider: ProviderGrok,
		apiKey:   cfg.APIKey,
		baseURL:  baseURL,
		timeout:  timeoutFrom(cfg),
	})
}
