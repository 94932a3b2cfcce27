package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrInvalidReply reports model output that is not a valid structured reply.
var ErrInvalidReply = errors.New("invalid structured reply")

// ReplyOutput is the structured reply requested from the model.
type ReplyOutput struct {
	ReplyText   string `json:"reply_text"`
	Intent      string `json:"intent,omitempty"`
	RouteReason string `json:"route_reason,omitempty"`
	MediaPlan   string `json:"media_plan,omitempty"`
	ReplyGoal   string `json:"reply_goal,omitempty"`
	// Structured is false when the output was taken as plain text.
	Structured bool `json:"-"`
}

func replySchema() *jsonschema.Schema {
	one := 1
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"reply_text"},
		Properties: map[string]*jsonschema.Schema{
			"reply_text":   {Type: "string", MinLength: &one},
			"intent":       {Type: "string", Enum: []any{"address", "purchase", "contact", "general"}},
			"route_reason": {Type: "string"},
			"media_plan":   {Type: "string", Enum: []any{"none", "address_image", "contact_image", "delayed_video"}},
			"reply_goal":   {Type: "string", Enum: []any{"解答", "追问地区", "引导预约", "推进购买意图"}},
		},
	}
}

var resolveReplySchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	return replySchema().Resolve(nil)
})

// ParseReply extracts and validates a structured reply. Markdown fences and
// text around the outermost braces are ignored.
func ParseReply(raw string) (ReplyOutput, error) {
	clean := stripFences(strings.TrimSpace(raw))
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start < 0 || end <= start {
		return ReplyOutput{}, fmt.Errorf("%w: no json object", ErrInvalidReply)
	}
	clean = clean[start : end+1]

	var instance map[string]any
	if err := json.Unmarshal([]byte(clean), &instance); err != nil {
		return ReplyOutput{}, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	resolved, err := resolveReplySchema()
	if err != nil {
		return ReplyOutput{}, fmt.Errorf("failed to resolve reply schema: %w", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return ReplyOutput{}, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}

	var output ReplyOutput
	if err := json.Unmarshal([]byte(clean), &output); err != nil {
		return ReplyOutput{}, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	output.ReplyText = strings.TrimSpace(output.ReplyText)
	if output.ReplyText == "" {
		return ReplyOutput{}, fmt.Errorf("%w: empty reply_text", ErrInvalidReply)
	}
	output.Structured = true
	return output, nil
}

// ReplyFromRaw parses raw, falling back to the whole response as reply text.
func ReplyFromRaw(raw string) ReplyOutput {
	if output, err := ParseReply(raw); err == nil {
		return output
	}
	return ReplyOutput{ReplyText: strings.TrimSpace(stripFences(strings.TrimSpace(raw)))}
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
