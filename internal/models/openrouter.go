package models

import (
	"context"
	"fmt"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

func NewOpenRouterModel(ctx context.Context, modelName string, cfg *genai.ClientConfig) (model.LLM, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	baseURL := baseURLFrom(cfg)
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	return newCompatibleModel(modelName, compatibleConfig{
		provider: ProviderOpenRouter,
		apiKey:   cfg.APIKey,
		baseURL:  baseURL,
		timeout:  timeoutFrom(cfg),
	})
}
