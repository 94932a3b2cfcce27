// Package agent implements the reply decision engine: it routes each
// incoming customer message to a rule, knowledge or LLM reply and plans the
// media that goes with it.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/easeaico/storefront-cs/internal/convlog"
	"github.com/easeaico/storefront-cs/internal/geo"
	"github.com/easeaico/storefront-cs/internal/knowledge"
	"github.com/easeaico/storefront-cs/internal/media"
	"github.com/easeaico/storefront-cs/internal/memory"
	"github.com/easeaico/storefront-cs/internal/prompt"
	"github.com/easeaico/storefront-cs/internal/types"
	"github.com/easeaico/storefront-cs/internal/utils"
)

var (
	// ErrMissingIdentity is returned when neither a session id nor a user name is given.
	ErrMissingIdentity = errors.New("session id or user name is required")
	// ErrInvalidMedia is returned when a media receipt names no deliverable type.
	ErrInvalidMedia = errors.New("invalid media item")
)

const (
	pruneInterval    = time.Hour
	promptExampleCap = 3
	// roundTTL bounds how long an undelivered decision waits for its receipt.
	roundTTL = time.Hour
	// firstTurnMissTTL bounds how long a negative log lookup is trusted.
	firstTurnMissTTL = time.Minute
)

// LLMClient generates a reply for one prompt. Implementations must honor ctx.
type LLMClient interface {
	Generate(ctx context.Context, system, user string) (string, error)
	ModelName() string
}

// Knowledge is the curated Q/A source consulted before the LLM.
type Knowledge interface {
	Load(ctx context.Context) error
	Count() int
	FindBestMatchDetail(query string, threshold float64) (types.MatchDetail, bool)
	TopExamples(query string, limit int) []knowledge.Example
}

// Config wires the engine collaborators. Nil collaborators get inert defaults.
type Config struct {
	Store     *memory.Store
	Log       *convlog.Log
	Knowledge Knowledge
	LLM       LLMClient
	Router    *geo.Router
	Library   *media.Library
	Whitelist *media.Whitelist
	Replies   *prompt.Replies

	SystemPromptPath string
	PlaybookPath     string

	UseKnowledgeFirst  bool
	KnowledgeThreshold float64
	MemoryTTL          time.Duration
	AddressCooldown    time.Duration
	HistoryLimit       int
}

// Request is one incoming customer message.
type Request struct {
	SessionID string              `json:"session_id"`
	UserName  string              `json:"user_name"`
	Text      string              `json:"text"`
	History   []types.ChatMessage `json:"history"`
}

// Status is a snapshot of the engine configuration for operators.
type Status struct {
	UseKnowledgeFirst      bool    `json:"use_knowledge_first"`
	KnowledgeThreshold     float64 `json:"knowledge_threshold"`
	MemoryTTLDays          int     `json:"memory_ttl_days"`
	SystemPromptLoaded     bool    `json:"system_prompt_loaded"`
	PlaybookLoaded         bool    `json:"playbook_loaded"`
	TemplateLoaded         bool    `json:"template_loaded"`
	MediaWhitelistCount    int     `json:"media_whitelist_count"`
	KnowledgeCount         int     `json:"knowledge_count"`
	LLMModel               string  `json:"llm_model"`
	ConversationLogEnabled bool    `json:"conversation_log_enabled"`
	Sessions               int     `json:"sessions"`
	Users                  int     `json:"users"`
	media.Counts
}

// round remembers what the last decision of a session planned so that the
// delivery receipt can be logged against it.
type round struct {
	meta  convlog.Meta
	media []types.MediaPlan
	at    time.Time
}

// Engine is the reply decision engine. Decide must not be called
// concurrently for the same session; distinct sessions are independent.
type Engine struct {
	store      *memory.Store
	log        *convlog.Log
	reconciler *memory.Reconciler
	kb         Knowledge
	llm        LLMClient
	router     *geo.Router
	arbiter    *media.Arbiter
	replies    *prompt.Replies
	builder    *prompt.Builder

	systemPromptPath string
	playbookPath     string
	memoryTTL        time.Duration
	nowFunc          func() time.Time

	mu                sync.RWMutex
	docs              prompt.Docs
	useKnowledgeFirst bool
	threshold         float64
	lastPrune         time.Time
	rounds            map[string]*round

	// seenUsers caches user hashes known to have received a reply.
	seenUsers sync.Map
	// seenMisses maps user hashes with no logged reply to the lookup time.
	seenMisses sync.Map
}

// New builds an engine from cfg and loads the prompt documents.
func New(cfg Config) *Engine {
	if cfg.Store == nil {
		cfg.Store = memory.NewStore(nil)
	}
	if cfg.Router == nil {
		cfg.Router = geo.NewRouter()
	}
	if cfg.Library == nil {
		cfg.Library = media.NewLibrary("", "")
	}
	if cfg.Whitelist == nil {
		cfg.Whitelist = media.NewWhitelist("")
	}
	if cfg.Replies == nil {
		cfg.Replies = prompt.NewReplies("")
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = memory.DefaultTTL
	}

	e := &Engine{
		store:            cfg.Store,
		log:              cfg.Log,
		reconciler:       memory.NewReconciler(cfg.Log, media.StoreForPath),
		kb:               cfg.Knowledge,
		llm:              cfg.LLM,
		router:           cfg.Router,
		arbiter:          media.NewArbiter(cfg.Library, cfg.Whitelist, cfg.AddressCooldown),
		replies:          cfg.Replies,
		builder:          prompt.NewBuilder(cfg.HistoryLimit),
		systemPromptPath: cfg.SystemPromptPath,
		playbookPath:     cfg.PlaybookPath,
		memoryTTL:        cfg.MemoryTTL,
		nowFunc:          time.Now,
		docs:             prompt.LoadDocs(cfg.SystemPromptPath, cfg.PlaybookPath),
		rounds:           map[string]*round{},
	}
	e.SetOptions(cfg.UseKnowledgeFirst, cfg.KnowledgeThreshold)
	return e
}

// SetClock replaces the time source of the engine and its collaborators.
func (e *Engine) SetClock(now func() time.Time) {
	e.nowFunc = now
	e.store.SetClock(now)
	e.arbiter.SetClock(now)
	if e.log != nil {
		e.log.SetClock(now)
	}
}

// SetOptions toggles knowledge-first answering and sets the match
// threshold, clamped to [0, 1].
func (e *Engine) SetOptions(useKnowledgeFirst bool, threshold float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.useKnowledgeFirst = useKnowledgeFirst
	e.threshold = min(1, max(0, threshold))
}

func (e *Engine) options() (bool, float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.useKnowledgeFirst, e.threshold
}

func (e *Engine) currentDocs() prompt.Docs {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.docs
}

// Status reports the current configuration and catalog sizes.
func (e *Engine) Status() Status {
	useKB, threshold := e.options()
	docs := e.currentDocs()
	sessions, users := e.store.Counts()
	st := Status{
		UseKnowledgeFirst:      useKB,
		KnowledgeThreshold:     threshold,
		MemoryTTLDays:          int(e.memoryTTL / (24 * time.Hour)),
		SystemPromptLoaded:     docs.SystemPromptLoaded(),
		PlaybookLoaded:         docs.PlaybookLoaded(),
		TemplateLoaded:         e.replies.Loaded(),
		MediaWhitelistCount:    e.arbiter.Whitelist().Len(),
		ConversationLogEnabled: e.log.Enabled(),
		Sessions:               sessions,
		Users:                  users,
		Counts:                 e.arbiter.Library().Counts(),
	}
	if e.kb != nil {
		st.KnowledgeCount = e.kb.Count()
	}
	if e.llm != nil {
		st.LLMModel = e.llm.ModelName()
	}
	return st
}

// ReloadPromptDocs rereads the persona and playbook documents and reports
// whether either is present.
func (e *Engine) ReloadPromptDocs() bool {
	docs := prompt.LoadDocs(e.systemPromptPath, e.playbookPath)
	e.mu.Lock()
	e.docs = docs
	e.mu.Unlock()
	return docs.SystemPromptLoaded() || docs.PlaybookLoaded()
}

// ReloadMediaLibrary rescans the media category index.
func (e *Engine) ReloadMediaLibrary() error {
	if err := e.arbiter.Library().Reload(); err != nil {
		return fmt.Errorf("failed to reload media library: %w", err)
	}
	return nil
}

// ReloadRuleConfigs rereads the reply templates and the media whitelist.
func (e *Engine) ReloadRuleConfigs() error {
	return errors.Join(e.replies.Reload(), e.arbiter.Whitelist().Reload())
}

// ReloadKnowledge reloads the knowledge base from its repository.
func (e *Engine) ReloadKnowledge(ctx context.Context) error {
	if e.kb == nil {
		return nil
	}
	if err := e.kb.Load(ctx); err != nil {
		return fmt.Errorf("failed to reload knowledge: %w", err)
	}
	return nil
}

// PruneExpired drops sessions and users idle for longer than the memory TTL,
// along with decisions whose delivery was never reported.
func (e *Engine) PruneExpired(ctx context.Context) (int, int) {
	now := e.nowFunc()
	e.mu.Lock()
	e.lastPrune = now
	for id, r := range e.rounds {
		if now.Sub(r.at) >= roundTTL {
			delete(e.rounds, id)
		}
	}
	e.mu.Unlock()
	e.seenMisses.Range(func(key, value any) bool {
		if now.Sub(value.(time.Time)) >= firstTurnMissTTL {
			e.seenMisses.Delete(key)
		}
		return true
	})
	return e.store.PruneExpired(ctx, e.memoryTTL)
}

func (e *Engine) maybePrune(ctx context.Context) {
	now := e.nowFunc()
	e.mu.RLock()
	due := now.Sub(e.lastPrune) >= pruneInterval
	e.mu.RUnlock()
	if due {
		e.PruneExpired(ctx)
	}
}

func identity(sessionID, userName string) (string, string, error) {
	sessionID = strings.TrimSpace(sessionID)
	userName = strings.TrimSpace(userName)
	if sessionID == "" && userName == "" {
		return "", "", ErrMissingIdentity
	}
	key := userName
	if key == "" {
		key = sessionID
	}
	userHash := utils.HashUser(key)
	if sessionID == "" {
		sessionID = "user_" + userHash
	}
	return sessionID, userHash, nil
}

// reconcile brings the session counters in line with the conversation log.
func (e *Engine) reconcile(ctx context.Context, sessionID, userHash string) types.SessionState {
	return e.store.UpdateSession(ctx, sessionID, userHash, func(s *types.SessionState) {
		e.reconciler.Reconcile(s)
	})
}

// isFirstTurn reports whether the user has never received a reply in any
// session.
func (e *Engine) isFirstTurn(userHash string, user types.UserState) bool {
	if _, ok := e.seenUsers.Load(userHash); ok {
		return false
	}
	seen := len(user.RecentReplyHashes) > 0
	if !seen && e.log.Enabled() {
		now := e.nowFunc()
		if at, ok := e.seenMisses.Load(userHash); ok && now.Sub(at.(time.Time)) < firstTurnMissTTL {
			return true
		}
		seen = e.log.HasAssistantReply(userHash)
		if !seen {
			e.seenMisses.Store(userHash, now)
		}
	}
	if seen {
		e.seenMisses.Delete(userHash)
		e.seenUsers.Store(userHash, struct{}{})
	}
	return !seen
}

// Decide chooses the reply and media plan for one customer message.
// Failures of collaborators degrade into fallback replies; an error is
// returned only for a missing identity or an already cancelled ctx.
func (e *Engine) Decide(ctx context.Context, req Request) (types.Decision, error) {
	sessionID, userHash, err := identity(req.SessionID, req.UserName)
	if err != nil {
		return types.Decision{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.Decision{}, fmt.Errorf("failed to decide: %w", err)
	}
	e.maybePrune(ctx)

	session := e.reconcile(ctx, sessionID, userHash)
	user := e.store.User(userHash)
	text := strings.TrimSpace(req.Text)

	t := &turn{
		sessionID:   sessionID,
		userHash:    userHash,
		text:        text,
		history:     req.History,
		route:       e.router.Resolve(text),
		intent:      detectIntent(text),
		session:     session,
		user:        user,
		firstTurn:   e.isFirstTurn(userHash, user),
		whitelisted: e.arbiter.Whitelisted(sessionID),
	}
	t.kb = e.lookupKnowledge(t)

	out := e.route(ctx, t)
	d := e.finish(t, out)

	e.store.UpdateSession(ctx, sessionID, userHash, func(s *types.SessionState) {
		applyRuleState(s, t.session, d, t.route)
	})

	meta := convlog.Meta{ReplySource: string(d.ReplySource), RuleID: d.RuleID, ModelName: d.LLMModel}
	e.log.Append(sessionID, userHash, types.EventUserMessage, meta, types.UserMessagePayload{Text: text})
	e.mu.Lock()
	e.rounds[sessionID] = &round{meta: meta, at: e.nowFunc()}
	e.mu.Unlock()

	slog.Info("reply decided",
		"session_id", sessionID,
		"rule_id", d.RuleID,
		"reply_source", d.ReplySource,
		"media_plan", d.MediaPlan,
		"media_skip_reason", d.MediaSkipReason,
		"first_turn", d.IsFirstTurnGlobal)
	return d, nil
}

// finish arbitrates the planned media and fills the diagnostic fields.
func (e *Engine) finish(t *turn, out outcome) types.Decision {
	d := out.decision
	d.IsFirstTurnGlobal = t.firstTurn
	d.KBBlockedByPoliteGuard = t.kb.blocked
	d.KBPoliteGuardReason = t.kb.reason
	if d.RouteReason == "" {
		d.RouteReason = t.route.Reason
	}
	if d.Intent == "" {
		d.Intent = t.intent
	}
	if d.DetectedRegion == "" {
		d.DetectedRegion = t.route.DetectedRegion
	}
	if !types.ValidReplyGoal(d.ReplyGoal) {
		d.ReplyGoal = types.GoalAnswer
	}
	if d.KBVariantTotal == 0 {
		d.KBVariantSelectedIndex = -1
	}

	v := e.arbiter.Arbitrate(out.offer, t.session, t.firstTurn)
	d.MediaPlan = v.Plan
	d.MediaItems = v.Items
	if d.MediaItems == nil {
		d.MediaItems = []types.MediaItem{}
	}
	d.FirstTurnMediaGuardApplied = v.FirstTurnGuard
	d.MediaSkipReason = v.SkipReason
	if d.MediaSkipReason == "" && d.MediaPlan == types.MediaNone {
		d.MediaSkipReason = out.skipReason
	}
	return d
}

// applyRuleState copies the rule-owned fields of the working session onto
// the stored one. Media counters are owned by reconciliation and untouched.
func applyRuleState(dst *types.SessionState, src types.SessionState, d types.Decision, route types.Route) {
	dst.ContactWarmup = src.ContactWarmup
	dst.ContactFollowupPromptCount = src.ContactFollowupPromptCount
	dst.GeoFollowupRound = src.GeoFollowupRound
	dst.GeoChoiceOffered = src.GeoChoiceOffered
	dst.LastGeoPending = src.LastGeoPending
	dst.LastTargetStore = src.LastTargetStore
	dst.StrongIntentAfterBothCount = src.StrongIntentAfterBothCount
	dst.PurchaseBothFirstHintSent = src.PurchaseBothFirstHintSent
	dst.AfterSalesSessionLocked = src.AfterSalesSessionLocked
	dst.AfterSalesFollowupCount = src.AfterSalesFollowupCount

	dst.LastRouteReason = d.RouteReason
	dst.LastIntent = d.Intent
	dst.LastReplyGoal = d.ReplyGoal
	if route.DetectedRegion != "" {
		dst.LastDetectedRegion = route.DetectedRegion
	}
}

// MarkReplySent records that replyText reached the customer. When the
// user's delayed video becomes due it is returned for immediate delivery.
func (e *Engine) MarkReplySent(ctx context.Context, sessionID, userName, replyText string) (*types.MediaItem, error) {
	sessionID, userHash, err := identity(sessionID, userName)
	if err != nil {
		return nil, err
	}
	session := e.reconcile(ctx, sessionID, userHash)

	e.mu.Lock()
	r := e.rounds[sessionID]
	delete(e.rounds, sessionID)
	e.mu.Unlock()
	payload := types.AssistantReplyPayload{Text: replyText, RoundMediaSentTypes: []types.MediaPlan{}}
	var meta convlog.Meta
	if r != nil {
		meta = r.meta
		payload.RoundMediaSentTypes = append(payload.RoundMediaSentTypes, r.media...)
	}
	e.log.Append(sessionID, userHash, types.EventAssistantReply, meta, payload)
	e.seenMisses.Delete(userHash)
	e.seenUsers.Store(userHash, struct{}{})

	var video *types.MediaItem
	e.store.UpdateUser(ctx, userHash, func(u *types.UserState) {
		u.PushReplyHash(utils.ReplyHash(replyText))
		if !u.VideoArmed || u.VideoSent {
			return
		}
		u.PostContactReplyCount++
		if item, ok := e.arbiter.VideoDue(session, *u); ok {
			u.VideoArmed = false
			u.PostContactReplyCount = 0
			video = &item
		}
	})
	if video != nil {
		slog.Info("delayed video released", "session_id", sessionID, "user_hash", userHash, "path", video.Path)
	}
	return video, nil
}

// MarkMediaSent records the delivery outcome of a planned media item.
// result is the channel's raw report and is logged verbatim.
func (e *Engine) MarkMediaSent(ctx context.Context, sessionID, userName string, item types.MediaItem, success bool, result json.RawMessage) error {
	sessionID, userHash, err := identity(sessionID, userName)
	if err != nil {
		return err
	}
	if !item.Type.Valid() || item.Type == types.MediaNone {
		return fmt.Errorf("%w: type %q", ErrInvalidMedia, item.Type)
	}

	meta := convlog.Meta{}
	e.mu.RLock()
	if r := e.rounds[sessionID]; r != nil {
		meta = r.meta
	}
	e.mu.RUnlock()
	e.log.Append(sessionID, userHash, types.EventMediaAttempt, meta, types.MediaAttemptPayload{
		Type:        item.Type,
		Path:        item.Path,
		TargetStore: item.TargetStore,
	})
	e.log.Append(sessionID, userHash, types.EventMediaResult, meta, types.MediaResultPayload{
		Type:    item.Type,
		Success: success,
		Result:  result,
	})

	now := e.nowFunc()
	e.store.UpdateSession(ctx, sessionID, userHash, func(s *types.SessionState) {
		if e.reconciler.Active() {
			e.reconciler.Reconcile(s)
		} else if success {
			memory.RecordSuccess(&s.LogLedger, item, now)
			memory.Project(s)
		}
		if success && item.Type == types.MediaContactImage {
			s.ContactWarmup = false
			s.LastGeoPending = false
		}
	})

	if success {
		e.mu.Lock()
		if r := e.rounds[sessionID]; r != nil {
			r.media = append(r.media, item.Type)
		}
		e.mu.Unlock()
	}

	e.store.UpdateUser(ctx, userHash, func(u *types.UserState) {
		switch {
		case item.Type == types.MediaContactImage && success:
			if !u.VideoSent {
				u.VideoArmed = true
				u.PostContactReplyCount = 0
			}
		case item.Type == types.MediaDelayedVideo && success:
			u.VideoSent = true
			u.VideoArmed = false
			u.PostContactReplyCount = 0
		case item.Type == types.MediaDelayedVideo:
			if !u.VideoSent {
				u.VideoArmed = true
				u.PostContactReplyCount = 0
			}
		}
	})

	if !success {
		slog.Warn("media delivery failed", "session_id", sessionID, "type", item.Type, "path", item.Path)
	}
	return nil
}
