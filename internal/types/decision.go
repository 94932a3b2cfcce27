package types

// Intent is the coarse customer intent detected for a message.
type Intent string

const (
	IntentAddress  Intent = "address"
	IntentPurchase Intent = "purchase"
	IntentContact  Intent = "contact"
	IntentGeneral  Intent = "general"
)

// Valid reports whether the intent is one of the known labels.
func (i Intent) Valid() bool {
	switch i {
	case IntentAddress, IntentPurchase, IntentContact, IntentGeneral:
		return true
	}
	return false
}

// MediaPlan names the attachment that accompanies a reply.
type MediaPlan string

const (
	MediaNone         MediaPlan = "none"
	MediaAddressImage MediaPlan = "address_image"
	MediaContactImage MediaPlan = "contact_image"
	MediaDelayedVideo MediaPlan = "delayed_video"
)

// Valid reports whether the plan is one of the known values.
func (p MediaPlan) Valid() bool {
	switch p {
	case MediaNone, MediaAddressImage, MediaContactImage, MediaDelayedVideo:
		return true
	}
	return false
}

// ReplySource identifies the subsystem that produced the reply text.
type ReplySource string

const (
	SourceRule      ReplySource = "rule"
	SourceKnowledge ReplySource = "knowledge"
	SourceLLM       ReplySource = "llm"
	SourceFallback  ReplySource = "fallback"
)

// Reply goals used for downstream analytics.
const (
	GoalAnswer       = "解答"
	GoalAskRegion    = "追问地区"
	GoalAppointment  = "引导预约"
	GoalPushPurchase = "推进购买意图"
)

// ValidReplyGoal reports whether goal is one of the analytics labels.
func ValidReplyGoal(goal string) bool {
	switch goal {
	case GoalAnswer, GoalAskRegion, GoalAppointment, GoalPushPurchase:
		return true
	}
	return false
}

// Store codes.
const (
	StoreUnknown     = "unknown"
	StoreBeijing     = "beijing_chaoyang"
	StoreJingan      = "sh_jingan"
	StoreXuhui       = "sh_xuhui"
	StoreWujiaochang = "sh_wujiaochang"
	StoreRenmin      = "sh_renmin"
	StoreHongkou     = "sh_hongkou"
)

// MediaItem is one concrete file to deliver.
type MediaItem struct {
	Type        MediaPlan `json:"type"`
	Path        string    `json:"path"`
	TargetStore string    `json:"target_store,omitempty"`
}

// Route is the geographic routing result for one message.
type Route struct {
	City           string `json:"city"`
	TargetStore    string `json:"target_store"`
	Reason         string `json:"reason"`
	RouteType      string `json:"route_type"`
	DetectedRegion string `json:"detected_region,omitempty"`
}

// HasStore reports whether the route resolved to a concrete store.
func (r Route) HasStore() bool {
	return r.TargetStore != "" && r.TargetStore != StoreUnknown
}

// Decision is the immutable outcome of one decide call.
type Decision struct {
	ReplyText   string      `json:"reply_text"`
	Intent      Intent      `json:"intent"`
	RouteReason string      `json:"route_reason"`
	ReplyGoal   string      `json:"reply_goal"`
	MediaPlan   MediaPlan   `json:"media_plan"`
	MediaItems  []MediaItem `json:"media_items"`
	RuleID      string      `json:"rule_id"`
	ReplySource ReplySource `json:"reply_source"`

	TargetStore       string `json:"target_store,omitempty"`
	DetectedRegion    string `json:"detected_region,omitempty"`
	RuleApplied       bool   `json:"rule_applied"`
	LLMModel          string `json:"llm_model,omitempty"`
	LLMFallbackReason string `json:"llm_fallback_reason,omitempty"`
	MediaSkipReason   string `json:"media_skip_reason,omitempty"`

	IsFirstTurnGlobal          bool `json:"is_first_turn_global"`
	FirstTurnMediaGuardApplied bool `json:"first_turn_media_guard_applied"`

	KBItemID               string `json:"kb_item_id,omitempty"`
	KBBlockedByPoliteGuard bool   `json:"kb_blocked_by_polite_guard"`
	KBPoliteGuardReason    string `json:"kb_polite_guard_reason,omitempty"`
	KBVariantTotal         int    `json:"kb_variant_total"`
	KBVariantSelectedIndex int    `json:"kb_variant_selected_index"`
	KBVariantFallbackLLM   bool   `json:"kb_variant_fallback_llm"`
}

// ChatMessage is one turn of conversation history supplied by the caller.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
