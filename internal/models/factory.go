package models

import (
	"context"
	"fmt"
	"slices"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// Supported providers.
const (
	ProviderOpenAI     = "openai"
	ProviderGrok       = "grok"
	ProviderOpenRouter = "openrouter"
	ProviderDeepSeek   = "deepseek"
	ProviderGemini     = "gemini"
)

var defaultModels = map[string]string{
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderGrok:       "grok-3-mini",
	ProviderOpenRouter: "openai/gpt-4o-mini",
	ProviderDeepSeek:   "deepseek-chat",
	ProviderGemini:     "gemini-2.5-flash",
}

type constructor func(ctx context.Context, modelName string, cfg *genai.ClientConfig) (model.LLM, error)

var constructors = map[string]constructor{
	ProviderOpenAI:     NewOpenAIModel,
	ProviderGrok:       NewGrokModel,
	ProviderOpenRouter: NewOpenRouterModel,
	ProviderDeepSeek:   NewDeepSeekModel,
	ProviderGemini:     NewGeminiModel,
}

// Config selects and configures an LLM provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// Providers lists the supported provider names.
func Providers() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SupportedProvider reports whether name is a known provider.
func SupportedProvider(name string) bool {
	_, ok := constructors[name]
	return ok
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	return defaultModels[provider]
}

// NewModel builds the adk model for cfg.
func NewModel(ctx context.Context, cfg Config) (model.LLM, error) {
	build, ok := constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
	name := cfg.Model
	if name == "" {
		name = DefaultModel(cfg.Provider)
	}
	clientCfg := &genai.ClientConfig{
		APIKey: cfg.APIKey,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		clientCfg.HTTPOptions.Timeout = &timeout
	}
	llm, err := build(ctx, name, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s model: %w", cfg.Provider, err)
	}
	return llm, nil
}
