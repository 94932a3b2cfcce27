// Package models 提供各家模型提供方的适配器实现。
package models

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// openaiModel 封装 OpenAI 兼容的聊天客户端。
type openaiModel struct {
	client             *openai.Client
	name               string
	provider           string
	versionHeaderValue string
}

// compatibleConfig 描述一个 OpenAI 兼容的服务端点。
type compatibleConfig struct {
	provider string
	apiKey   string
	baseURL  string
	timeout  time.Duration
}

func newCompatibleModel(modelName string, cfg compatibleConfig) (model.LLM, error) {
	if cfg.apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.apiKey),
		option.WithMaxRetries(1),
	}
	if cfg.baseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.timeout))
	}
	client := openai.NewClient(opts...)

	// 创建时一次性生成 UA 头，避免每次请求重复拼接。
	headerValue := fmt.Sprintf("storefront-cs/%s %s go/%s",
		"1.0.0", cfg.provider, strings.TrimPrefix(runtime.Version(), "go"))

	return &openaiModel{
		name:               modelName,
		provider:           cfg.provider,
		client:             &client,
		versionHeaderValue: headerValue,
	}, nil
}

// NewOpenAIModel 创建 OpenAI 官方端点的模型。
func NewOpenAIModel(ctx context.Context, modelName string, cfg *genai.ClientConfig) (model.LLM, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return newCompatibleModel(modelName, compatibleConfig{
		provider: ProviderOpenAI,
		apiKey:   cfg.APIKey,
		baseURL:  baseURLFrom(cfg),
		timeout:  timeoutFrom(cfg),
	})
}

func (m *openaiModel) Name() string {
	return m.name
}

// GenerateContent 仅支持非流式调用；stream 参数被忽略。
func (m *openaiModel) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	m.maybeAppendUserContent(req)

	if req.Config == nil {
		req.Config = &genai.GenerateContentConfig{}
	}
	if req.Config.HTTPOptions == nil {
		req.Config.HTTPOptions = &genai.HTTPOptions{}
	}
	if req.Config.HTTPOptions.Headers == nil {
		req.Config.HTTPOptions.Headers = make(http.Header)
	}
	m.addHeaders(req.Config.HTTPOptions.Headers)

	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		yield(resp, err)
	}
}

func (m *openaiModel) addHeaders(headers http.Header) {
	headers.Set("user-agent", m.versionHeaderValue)
}

func (m *openaiModel) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	params := buildOpenAIParams(req, m.name)

	resp, err := m.client.Chat.Completions.New(ctx, *params,
		option.WithHeader("User-Agent", req.Config.HTTPOptions.Headers.Get("user-agent")))
	if err != nil {
		slog.Error("failed to call llm API", "provider", m.provider, "model", m.name, "error", err.Error())
		return nil, fmt.Errorf("failed to call %s API: %w", m.provider, err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return &model.LLMResponse{}, nil
	}

	message := resp.Choices[0].Message
	content := &genai.Content{
		Role:  genai.RoleModel,
		Parts: []*genai.Part{},
	}
	if message.Content != "" {
		content.Parts = append(content.Parts, &genai.Part{Text: message.Content})
	}

	return &model.LLMResponse{
		Content:      content,
		TurnComplete: true,
	}, nil
}

func (m *openaiModel) maybeAppendUserContent(req *model.LLMRequest) {
	if len(req.Contents) == 0 {
		req.Contents = append(req.Contents, genai.NewContentFromText("Handle the requests as specified in the System Instruction.", "user"))
	}

	if last := req.Contents[len(req.Contents)-1]; last != nil && last.Role != "user" {
		req.Contents = append(req.Contents, genai.NewContentFromText("Continue processing previous requests as instructed.", "user"))
	}
}

func baseURLFrom(cfg *genai.ClientConfig) string {
	return cfg.HTTPOptions.BaseURL
}

func timeoutFrom(cfg *genai.ClientConfig) time.Duration {
	if cfg.HTTPOptions.Timeout == nil {
		return 0
	}
	return *cfg.HTTPOptions.Timeout
}
