package agent

import (
	"context"

	"github.com/easeaico/storefront-cs/internal/geo"
	"github.com/easeaico/storefront-cs/internal/media"
	"github.com/easeaico/storefront-cs/internal/prompt"
	"github.com/easeaico/storefront-cs/internal/types"
)

// Rule ids recorded on every decision for audit.
const (
	RuleStoreRecommend        = "ADDR_STORE_RECOMMEND"
	RuleOutOfCoverage         = "ADDR_OUT_OF_COVERAGE"
	RuleOutOfCoverageWarmup   = "ADDR_OUT_OF_COVERAGE_WARMUP"
	RuleOutOfCoverageRemind   = "ADDR_OUT_OF_COVERAGE_REMIND_ONLY"
	RuleContactSendImage      = "CONTACT_SEND_IMAGE"
	RuleContactFollowup       = "CONTACT_FOLLOWUP"
	RulePurchaseKnownGeo      = "PURCHASE_CONTACT_FROM_KNOWN_GEO"
	RulePurchaseRemind        = "PURCHASE_CONTACT_REMIND_ONLY"
	RulePurchaseRemoteContact = "PURCHASE_REMOTE_CONTACT_IMAGE"
	RulePurchaseRemoteRemind  = "PURCHASE_REMOTE_CONTACT_REMIND_ONLY"
	RulePurchaseBothFirstHint = "PURCHASE_AFTER_BOTH_FIRST_HINT"
	RuleAfterSalesRemote      = "AFTER_SALES_REMOTE_SUPPORT"
	RuleAfterSalesDetail      = "AFTER_SALES_DETAIL_GUIDE"
	RuleAfterSalesFollowup    = "AFTER_SALES_FOLLOWUP"
	RuleKBMatch               = "KB_MATCH"
	RuleKBMatchContact        = "KB_MATCH_CONTACT_IMAGE"
	RuleLLMGeneral            = "LLM_GENERAL"
	RuleLLMKBVariantFallback  = "LLM_KB_VARIANT_FALLBACK"
	RuleLLMFallback           = "LLM_FALLBACK"
	ruleAskDistrictPrefix     = "ADDR_ASK_DISTRICT_"
	ruleAskRegionPrefix       = "ADDR_ASK_REGION_"
	reasonNeedDistrict        = "need_district"
	reasonNeedRegion          = "need_region"
	defaultRegionPlaceholder  = "您所在地区"
	geoFollowupRoundsPerCycle = 2
)

// turn is the working state of one Decide call. session is a private copy;
// its rule-owned fields are written back when the decision is final.
type turn struct {
	sessionID   string
	userHash    string
	text        string
	history     []types.ChatMessage
	route       types.Route
	intent      types.Intent
	session     types.SessionState
	user        types.UserState
	firstTurn   bool
	whitelisted bool
	kb          kbLookup
}

// contactSent reports whether the session already delivered a contact
// image and is subject to the once-per-session throttle.
func (t *turn) contactSent() bool {
	return t.session.ContactImageSentCount > 0 && !t.whitelisted
}

// outcome is a rule's reply plus the media it would like to attach.
type outcome struct {
	decision types.Decision
	offer    media.Offer
	// skipReason explains a deliberate absence of media.
	skipReason string
}

func (e *Engine) ruleReply(t *turn, ruleID, key string, vars map[string]string) types.Decision {
	return types.Decision{
		ReplyText:   e.replies.Render(key, vars),
		Intent:      t.intent,
		RouteReason: t.route.Reason,
		ReplyGoal:   types.GoalAnswer,
		ReplySource: types.SourceRule,
		RuleID:      ruleID,
		RuleApplied: true,
	}
}

// route applies the scene precedence: after-sales, knowledge answers that
// carry a contact image, purchase, address/geo, contact, then general.
func (e *Engine) route(ctx context.Context, t *turn) outcome {
	s := &t.session
	afterSalesText := isAfterSales(t.text)
	if s.AfterSalesSessionLocked && !afterSalesText && t.intent == types.IntentPurchase {
		s.AfterSalesSessionLocked = false
		s.AfterSalesFollowupCount = 0
	}
	if afterSalesText || s.AfterSalesSessionLocked {
		return e.afterSales(t)
	}

	if t.kb.attachesContact() && t.route.Reason == geo.ReasonUnknown &&
		(t.intent == types.IntentPurchase || t.intent == types.IntentGeneral) {
		return e.knowledgeReply(ctx, t)
	}

	if t.intent == types.IntentPurchase {
		if e.arbiter.Locked(*s) {
			s.StrongIntentAfterBothCount++
			if !s.PurchaseBothFirstHintSent {
				s.PurchaseBothFirstHintSent = true
				d := e.ruleReply(t, RulePurchaseBothFirstHint, prompt.KeyPurchaseBothFirstHint, nil)
				d.ReplyGoal = types.GoalAppointment
				return outcome{decision: d, skipReason: media.SkipLocked}
			}
			return e.general(ctx, t)
		}
		if out, ok := e.purchase(t); ok {
			return out
		}
	}

	if e.geoApplies(t) {
		return e.geoScene(t)
	}
	if t.intent == types.IntentContact {
		return e.contactScene(t)
	}
	return e.general(ctx, t)
}

func (e *Engine) geoApplies(t *turn) bool {
	switch t.route.RouteType {
	case geo.RouteCoverage, geo.RouteNonCoverage, geo.RouteNeedDistrict:
		return true
	}
	if t.intent == types.IntentAddress || t.intent == types.IntentPurchase {
		return true
	}
	return t.session.LastGeoPending && geo.LooksLikeGeoReply(t.text, t.route)
}

// purchase handles purchase intent once a store was recommended earlier in
// the session. A store named in this message goes to the address scene.
func (e *Engine) purchase(t *turn) (outcome, bool) {
	s := &t.session
	route := t.route
	switch {
	case route.HasStore() && route.Reason == geo.ReasonNorthFallback:
		if !t.contactSent() {
			return e.storeRecommend(t), true
		}
		d := e.ruleReply(t, RulePurchaseRemoteRemind, prompt.KeyPurchaseNorthRemind, nil)
		d.Intent = types.IntentPurchase
		d.ReplyGoal = types.GoalPushPurchase
		d.TargetStore = route.TargetStore
		return outcome{decision: d, skipReason: media.SkipContactSent}, true

	case s.LastTargetStore != "" && route.Reason == geo.ReasonOutOfCoverage:
		d := e.ruleReply(t, RulePurchaseRemoteContact, prompt.KeyPurchaseRemoteContact, nil)
		d.Intent = types.IntentPurchase
		d.ReplyGoal = types.GoalPushPurchase
		if t.contactSent() {
			d.RuleID = RulePurchaseRemoteRemind
			d.ReplyText = e.replies.Render(prompt.KeyPurchaseRemoteRemind, nil)
			return outcome{decision: d, skipReason: media.SkipContactSent}, true
		}
		return outcome{decision: d, offer: media.Offer{Plan: types.MediaContactImage}}, true

	case s.LastTargetStore != "" && route.Reason == geo.ReasonUnknown:
		return e.knownGeoContact(t, s.LastTargetStore), true
	}
	return outcome{}, false
}

func (e *Engine) knownGeoContact(t *turn, store string) outcome {
	d := e.ruleReply(t, RulePurchaseKnownGeo, prompt.KeyPurchaseKnownGeoContact, nil)
	d.Intent = types.IntentPurchase
	d.ReplyGoal = types.GoalAppointment
	d.TargetStore = store
	if t.contactSent() {
		d.RuleID = RulePurchaseRemind
		d.ReplyText = e.replies.Render(prompt.KeyPurchaseContactRemind, nil)
		return outcome{decision: d, skipReason: media.SkipContactSent}
	}
	return outcome{decision: d, offer: media.Offer{Plan: types.MediaContactImage}}
}

func resetGeoFollowup(s *types.SessionState) {
	s.LastGeoPending = false
	s.GeoFollowupRound = 0
	s.GeoChoiceOffered = false
}

func (e *Engine) geoScene(t *turn) outcome {
	switch {
	case t.route.HasStore():
		return e.storeRecommend(t)
	case t.route.Reason == geo.ReasonShanghaiNeedDistrict:
		return e.geoFollowup(t, true)
	case t.route.Reason == geo.ReasonOutOfCoverage:
		return e.outOfCoverage(t, t.route.DetectedRegion)
	case t.session.LastGeoPending && t.intent == types.IntentGeneral:
		// An unlisted city answering our question is outside coverage.
		if region := regionFromText(t.text); region != "" {
			return e.outOfCoverage(t, region)
		}
	}
	return e.geoFollowup(t, false)
}

func (e *Engine) storeRecommend(t *turn) outcome {
	store := t.route.TargetStore
	s := &t.session
	s.LastTargetStore = store
	resetGeoFollowup(s)

	d := e.ruleReply(t, RuleStoreRecommend, prompt.KeyStoreRecommend, map[string]string{
		"store_name": geo.StoreName(store),
	})
	d.Intent = types.IntentAddress
	d.TargetStore = store
	return outcome{decision: d, offer: media.Offer{Plan: types.MediaAddressImage, Store: store}}
}

// geoFollowup asks for the customer's location: two rounds of questions,
// then a multiple-choice prompt, then the cycle restarts.
func (e *Engine) geoFollowup(t *turn, district bool) outcome {
	s := &t.session
	var suffix, key string
	switch {
	case s.GeoFollowupRound < geoFollowupRoundsPerCycle:
		s.GeoFollowupRound++
		s.GeoChoiceOffered = false
		if s.GeoFollowupRound == 1 {
			suffix = "R1"
			key = pick(district, prompt.KeyAskDistrictR1, prompt.KeyAskRegionR1)
		} else {
			suffix = "R2"
			key = pick(district, prompt.KeyAskDistrictR2, prompt.KeyAskRegionR2)
		}
	case !s.GeoChoiceOffered:
		s.GeoChoiceOffered = true
		suffix = "CHOICE"
		key = pick(district, prompt.KeyAskDistrictChoice, prompt.KeyAskRegionChoice)
	default:
		s.GeoFollowupRound = 1
		s.GeoChoiceOffered = false
		suffix = "R1_RESET"
		key = pick(district, prompt.KeyAskDistrictR1Reset, prompt.KeyAskRegionR1Reset)
	}
	s.LastGeoPending = true

	ruleID := pick(district, ruleAskDistrictPrefix, ruleAskRegionPrefix) + suffix
	d := e.ruleReply(t, ruleID, key, nil)
	d.RouteReason = pick(district, reasonNeedDistrict, reasonNeedRegion)
	d.ReplyGoal = types.GoalAskRegion
	if t.intent != types.IntentPurchase {
		d.Intent = types.IntentAddress
	}
	return outcome{decision: d}
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

// outOfCoverage discloses the store footprint and, unless the customer
// only showed weak interest for the first time, offers the contact image.
func (e *Engine) outOfCoverage(t *turn, region string) outcome {
	s := &t.session
	pending := s.LastGeoPending
	resetGeoFollowup(s)

	if region == "" {
		region = regionFromText(t.text)
	}
	if region == "" {
		region = s.LastDetectedRegion
	}
	if region == "" {
		region = defaultRegionPlaceholder
	}
	vars := map[string]string{"region": region}

	d := e.ruleReply(t, RuleOutOfCoverage, prompt.KeyNonCoverageContact, vars)
	d.RouteReason = geo.ReasonOutOfCoverage
	d.ReplyGoal = types.GoalPushPurchase
	d.DetectedRegion = region
	if t.intent != types.IntentPurchase {
		d.Intent = types.IntentAddress
	}

	switch {
	case t.contactSent():
		d.RuleID = RuleOutOfCoverageRemind
		d.ReplyText = e.replies.Render(prompt.KeyNonCoverageRemind, vars)
		return outcome{decision: d, skipReason: media.SkipContactSent}
	case t.intent == types.IntentGeneral && !s.ContactWarmup && !pending && !t.whitelisted && !hasSelfLocation(t.text):
		s.ContactWarmup = true
		d.RuleID = RuleOutOfCoverageWarmup
		d.ReplyText = e.replies.Render(prompt.KeyNonCoverageWarmup, vars)
		return outcome{decision: d, skipReason: media.SkipContactWarmup}
	}
	return outcome{decision: d, offer: media.Offer{Plan: types.MediaContactImage}}
}

// contactScene answers explicit requests for contact details.
func (e *Engine) contactScene(t *turn) outcome {
	s := &t.session
	if t.contactSent() {
		key := prompt.KeyContactFollowup1
		if s.ContactFollowupPromptCount%2 == 1 {
			key = prompt.KeyContactFollowup2
		}
		s.ContactFollowupPromptCount++
		d := e.ruleReply(t, RuleContactFollowup, key, nil)
		d.Intent = types.IntentContact
		d.ReplyGoal = types.GoalPushPurchase
		return outcome{decision: d, skipReason: media.SkipContactSent}
	}
	d := e.ruleReply(t, RuleContactSendImage, prompt.KeyContactIntro, nil)
	d.Intent = types.IntentContact
	d.ReplyGoal = types.GoalPushPurchase
	return outcome{decision: d, offer: media.Offer{Plan: types.MediaContactImage}}
}
