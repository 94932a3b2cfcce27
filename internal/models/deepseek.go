package models

import (
	"context"
	"fmt"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const deepSeekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekModel creates a DeepSeek chat model over its OpenAI-compatible API.
func NewDeepSeekModel(ctx context.Context, modelName string, cfg *genai.ClientConfig) (model.LLM, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	baseURL := baseURLFrom(cfg)
	if baseURL == "" {
		baseURL = deepSeekBaseURL
	}
	return newCompatibleModel(modelName, compatibleConfig{
		provider: ProviderDeepSeek,
		apiKey:   cfg.APIKey,
		baseURL:  baseURL,
		timeout:  timeoutFrom(cfg),
	})
}
