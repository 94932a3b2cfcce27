package agent

import (
	"github.com/easeaico/storefront-cs/internal/geo"
	"github.com/easeaico/storefront-cs/internal/media"
	"github.com/easeaico/storefront-cs/internal/prompt"
	"github.com/easeaico/storefront-cs/internal/types"
)

// afterSales locks the session into care and repair guidance. Remote
// customers get remote support; the first message or one naming a symptom
// gets the detailed guide, later messages a short follow-up.
func (e *Engine) afterSales(t *turn) outcome {
	s := &t.session
	first := !s.AfterSalesSessionLocked

	ruleID, key := RuleAfterSalesFollowup, prompt.KeyAfterSalesFollowup
	switch {
	case t.route.Reason == geo.ReasonOutOfCoverage:
		ruleID, key = RuleAfterSalesRemote, prompt.KeyAfterSalesRemote
	case first || hasSymptom(t.text):
		ruleID, key = RuleAfterSalesDetail, prompt.KeyAfterSalesDetail
	}
	s.AfterSalesSessionLocked = true
	s.AfterSalesFollowupCount++

	d := e.ruleReply(t, ruleID, key, nil)
	d.ReplyGoal = types.GoalAnswer
	return outcome{decision: d, skipReason: media.SkipAfterSales}
}
