package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/easeaico/storefront-cs/internal/geo"
	"github.com/easeaico/storefront-cs/internal/knowledge"
	"github.com/easeaico/storefront-cs/internal/media"
	"github.com/easeaico/storefront-cs/internal/prompt"
	"github.com/easeaico/storefront-cs/internal/types"
	"github.com/easeaico/storefront-cs/internal/utils"
)

const (
	politeMixedQuery = "polite_mixed_query"
	politeNotExact   = "polite_not_exact"
)

// kbLookup is the knowledge lookup made once per turn.
type kbLookup struct {
	detail  types.MatchDetail
	matched bool
	blocked bool
	reason  string
}

func (p kbLookup) usable() bool {
	return p.matched && !p.blocked
}

func (p kbLookup) attachesContact() bool {
	return p.usable() && attachesContact(p.detail.Item)
}

// lookupKnowledge looks up the best knowledge item for the message. Polite
// closers only answer a message that is exactly the closer.
func (e *Engine) lookupKnowledge(t *turn) kbLookup {
	useKB, threshold := e.options()
	if !useKB || e.kb == nil || t.text == "" {
		return kbLookup{}
	}
	detail, ok := e.kb.FindBestMatchDetail(t.text, threshold)
	if !ok {
		return kbLookup{}
	}
	p := kbLookup{detail: detail, matched: true}
	if hasAnyTag(detail.Item, politeTags) && !knowledge.MatchesExactly(detail.Item, t.text) {
		p.blocked = true
		p.reason = politeNotExact
		if t.route.Reason != geo.ReasonUnknown || t.intent != types.IntentGeneral || isAfterSales(t.text) {
			p.reason = politeMixedQuery
		}
		slog.Debug("knowledge match blocked",
			"session_id", t.sessionID,
			"kb_item_id", detail.Item.ID,
			"reason", p.reason)
	}
	return p
}

func (e *Engine) general(ctx context.Context, t *turn) outcome {
	if t.kb.usable() {
		return e.knowledgeReply(ctx, t)
	}
	return e.llmReply(ctx, t, RuleLLMGeneral)
}

// knowledgeReply answers verbatim from the matched item, rotating through
// its variants so the user does not get the same line twice.
func (e *Engine) knowledgeReply(ctx context.Context, t *turn) outcome {
	item := t.kb.detail.Item
	answers := item.Answers
	if len(answers) == 0 && item.Answer != "" {
		answers = []string{item.Answer}
	}

	index := 0
	if len(answers) > 1 {
		i, ok := pickVariant(answers, t.user)
		if !ok {
			out := e.llmReply(ctx, t, RuleLLMKBVariantFallback)
			out.decision.KBItemID = item.ID
			out.decision.KBVariantTotal = len(answers)
			out.decision.KBVariantSelectedIndex = -1
			out.decision.KBVariantFallbackLLM = true
			return out
		}
		index = i
	}

	d := types.Decision{
		ReplyText:              answers[index],
		Intent:                 t.intent,
		RouteReason:            t.route.Reason,
		ReplyGoal:              types.GoalAnswer,
		ReplySource:            types.SourceKnowledge,
		RuleID:                 RuleKBMatch,
		RuleApplied:            true,
		KBItemID:               item.ID,
		KBVariantTotal:         len(answers),
		KBVariantSelectedIndex: index,
	}
	if !attachesContact(item) {
		return outcome{decision: d}
	}
	d.RuleID = RuleKBMatchContact
	d.ReplyGoal = types.GoalAppointment
	return outcome{decision: d, offer: media.Offer{Plan: types.MediaContactImage, FromKnowledge: true}}
}

// llmReply asks the model for a reply. A reply the user has recently seen
// is rewritten once, then replaced by a continuation line.
func (e *Engine) llmReply(ctx context.Context, t *turn, ruleID string) outcome {
	if e.llm == nil {
		return e.fallback(t, "llm not configured")
	}
	out, err := e.generate(ctx, t, "")
	if err != nil {
		slog.Warn("llm generation failed", "session_id", t.sessionID, "error", err)
		return e.fallback(t, err.Error())
	}

	if isRecent(t.user, out.ReplyText) {
		repeated := out.ReplyText
		rewritten, err := e.generate(ctx, t, repeated)
		switch {
		case err != nil:
			slog.Warn("llm rewrite failed", "session_id", t.sessionID, "error", err)
			out.ReplyText = e.continuation(t, repeated)
		case isRecent(t.user, rewritten.ReplyText):
			out.ReplyText = e.continuation(t, repeated, rewritten.ReplyText)
		default:
			out = rewritten
		}
	}

	d := types.Decision{
		ReplyText:   out.ReplyText,
		Intent:      t.intent,
		RouteReason: t.route.Reason,
		ReplyGoal:   types.GoalAnswer,
		ReplySource: types.SourceLLM,
		RuleID:      ruleID,
		LLMModel:    e.llm.ModelName(),
	}
	if types.ValidReplyGoal(out.ReplyGoal) {
		d.ReplyGoal = out.ReplyGoal
	}
	if out.MediaPlan != "" && out.MediaPlan != string(types.MediaNone) {
		slog.Debug("ignoring model media plan", "session_id", t.sessionID, "media_plan", out.MediaPlan)
	}
	return outcome{decision: d}
}

func (e *Engine) continuation(t *turn, avoid ...string) string {
	line := pickContinuation(e.replies.RepeatPool(), t.user, avoid...)
	if line == "" {
		return e.replies.Render(prompt.KeyGeneralEmpty, nil)
	}
	return line
}

func (e *Engine) generate(ctx context.Context, t *turn, rewriteOf string) (utils.ReplyOutput, error) {
	bc := prompt.BuildContext{
		Docs:        e.currentDocs(),
		History:     t.history,
		UserMessage: t.text,
		RewriteOf:   rewriteOf,
	}
	if e.kb != nil {
		bc.Examples = e.kb.TopExamples(t.text, promptExampleCap)
	}
	p, err := e.builder.Build(bc)
	if err != nil {
		return utils.ReplyOutput{}, fmt.Errorf("failed to build prompt: %w", err)
	}
	raw, err := e.llm.Generate(ctx, p.System, p.User)
	if err != nil {
		return utils.ReplyOutput{}, fmt.Errorf("failed to generate reply: %w", err)
	}
	out := utils.ReplyFromRaw(raw)
	out.ReplyText = normalizeLLMReply(e.replies, out.ReplyText)
	return out, nil
}

func (e *Engine) fallback(t *turn, reason string) outcome {
	d := types.Decision{
		ReplyText:         e.replies.Render(prompt.KeyLLMFallback, nil),
		Intent:            t.intent,
		RouteReason:       t.route.Reason,
		ReplyGoal:         types.GoalAnswer,
		ReplySource:       types.SourceFallback,
		RuleID:            RuleLLMFallback,
		LLMFallbackReason: reason,
	}
	if e.llm != nil {
		d.LLMModel = e.llm.ModelName()
	}
	return outcome{decision: d}
}
