package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/storefront-cs/internal/utils"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty model response")

// Chat sends single-turn requests to an adk model with a hard timeout.
type Chat struct {
	llm     model.LLM
	timeout time.Duration
}

// NewChat wraps llm. A non-positive timeout disables the deadline.
func NewChat(llm model.LLM, timeout time.Duration) *Chat {
	return &Chat{llm: llm, timeout: timeout}
}

// ModelName returns the underlying model name.
func (c *Chat) ModelName() string {
	if c == nil || c.llm == nil {
		return ""
	}
	return c.llm.Name()
}

// Generate asks the model for a JSON reply to user under the system
// instruction and returns the raw text.
func (c *Chat) Generate(ctx context.Context, system, user string) (string, error) {
	if c == nil || c.llm == nil {
		return "", fmt.Errorf("llm not configured")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := &model.LLMRequest{
		Contents: []*genai.Content{
			genai.NewContentFromText(user, genai.RoleUser),
		},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			ResponseMIMEType:  jsonMIMEType,
		},
	}

	seq := c.llm.GenerateContent(ctx, req, false)
	var resp *model.LLMResponse
	var err error
	seq(func(r *model.LLMResponse, e error) bool {
		resp = r
		err = e
		return false
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("failed to generate reply: %w", ctxErr)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(utils.ExtractContentText(resp.Content))
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
