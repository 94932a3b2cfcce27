// Package prompt assembles LLM prompts and renders canned replies.
package prompt

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/easeaico/storefront-cs/internal/knowledge"
	"github.com/easeaico/storefront-cs/internal/types"
)

// BuildContext contains all inputs for prompt assembly.
type BuildContext struct {
	Docs        Docs
	Examples    []knowledge.Example
	History     []types.ChatMessage
	UserMessage string
	// RewriteOf is a previous reply the model must rephrase.
	RewriteOf string
}

// Prompt is an assembled request: system instruction plus user turn.
type Prompt struct {
	System string
	User   string
}

// Builder assembles layered prompts for the engine.
type Builder struct {
	historyLimit int
}

// NewBuilder creates a prompt Builder.
func NewBuilder(historyLimit int) *Builder {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Builder{historyLimit: historyLimit}
}

// Build assembles the system prompt and the conversation block.
func (b *Builder) Build(ctx BuildContext) (Prompt, error) {
	history := make([]types.ChatMessage, 0, len(ctx.History))
	for _, m := range ctx.History {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		history = append(history, m)
	}
	if len(history) > b.historyLimit {
		history = history[len(history)-b.historyLimit:]
	}

	var sys bytes.Buffer
	if err := systemTemplate.Execute(&sys, struct {
		SystemDoc string
		Playbook  string
		Examples  []knowledge.Example
	}{
		SystemDoc: ctx.Docs.SystemPrompt,
		Playbook:  ctx.Docs.Playbook,
		Examples:  ctx.Examples,
	}); err != nil {
		return Prompt{}, fmt.Errorf("failed to build system prompt: %w", err)
	}

	var user bytes.Buffer
	if err := conversationTemplate.Execute(&user, struct {
		History     []types.ChatMessage
		UserMessage string
		RewriteOf   string
	}{
		History:     history,
		UserMessage: strings.TrimSpace(ctx.UserMessage),
		RewriteOf:   ctx.RewriteOf,
	}); err != nil {
		return Prompt{}, fmt.Errorf("failed to build conversation block: %w", err)
	}

	return Prompt{System: sys.String(), User: user.String()}, nil
}
