// Package handler exposes the reply engine and the knowledge base over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/easeaico/storefront-cs/internal/agent"
	"github.com/easeaico/storefront-cs/internal/knowledge"
	"github.com/easeaico/storefront-cs/internal/types"
)

const maxBodyBytes = 4 << 20

// Engine is the decision engine as seen by the delivery channel.
type Engine interface {
	Decide(ctx context.Context, req agent.Request) (types.Decision, error)
	MarkReplySent(ctx context.Context, sessionID, userName, replyText string) (*types.MediaItem, error)
	MarkMediaSent(ctx context.Context, sessionID, userName string, item types.MediaItem, success bool, result json.RawMessage) error
	Status() agent.Status
	SetOptions(useKnowledgeFirst bool, threshold float64)
	ReloadPromptDocs() bool
	ReloadMediaLibrary() error
	ReloadRuleConfigs() error
	ReloadKnowledge(ctx context.Context) error
	PruneExpired(ctx context.Context) (int, int)
}

// KnowledgeBase is the editable knowledge store.
type KnowledgeBase interface {
	All() []types.KnowledgeItem
	Count() int
	Get(id string) (types.KnowledgeItem, error)
	Search(query string) []types.KnowledgeItem
	Add(ctx context.Context, item types.KnowledgeItem) (types.KnowledgeItem, error)
	Update(ctx context.Context, id string, patch knowledge.Patch) (types.KnowledgeItem, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Import(ctx context.Context, data []byte) (int, int, error)
	Export() ([]byte, error)
}

// Handler serves the engine API.
type Handler struct {
	engine Engine
	kb     KnowledgeBase
}

// New creates a Handler. kb may be nil, which disables the knowledge routes.
func New(engine Engine, kb KnowledgeBase) *Handler {
	return &Handler{engine: engine, kb: kb}
}

// RegisterRoutes mounts the API under /v1.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/decide", h.HandleDecide)
		r.Post("/replies", h.HandleReplySent)
		r.Post("/media", h.HandleMediaSent)
		r.Get("/status", h.HandleStatus)
		r.Put("/options", h.HandleOptions)
		r.Post("/reload/{target}", h.HandleReload)
		r.Post("/prune", h.HandlePrune)
		if h.kb != nil {
			r.Route("/knowledge", h.registerKnowledge)
		}
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err.Error())
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// HandleDecide chooses the reply for one customer message.
func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	var req agent.Request
	if !decode(w, r, &req) {
		return
	}
	d, err := h.engine.Decide(r.Context(), req)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, d)
}

type replySentRequest struct {
	SessionID string `json:"session_id"`
	UserName  string `json:"user_name"`
	ReplyText string `json:"reply_text"`
}

type replySentResponse struct {
	DelayedVideo *types.MediaItem `json:"delayed_video"`
}

// HandleReplySent records a delivered reply and returns the delayed video
// when it became due.
func (h *Handler) HandleReplySent(w http.ResponseWriter, r *http.Request) {
	var req replySentRequest
	if !decode(w, r, &req) {
		return
	}
	video, err := h.engine.MarkReplySent(r.Context(), req.SessionID, req.UserName, req.ReplyText)
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, replySentResponse{DelayedVideo: video})
}

type mediaSentRequest struct {
	SessionID string          `json:"session_id"`
	UserName  string          `json:"user_name"`
	Item      types.MediaItem `json:"item"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// HandleMediaSent records the delivery outcome of a media item.
func (h *Handler) HandleMediaSent(w http.ResponseWriter, r *http.Request) {
	var req mediaSentRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.MarkMediaSent(r.Context(), req.SessionID, req.UserName, req.Item, req.Success, req.Result); err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleStatus reports the engine configuration.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.engine.Status())
}

type optionsRequest struct {
	UseKnowledgeFirst  *bool    `json:"use_knowledge_first"`
	KnowledgeThreshold *float64 `json:"knowledge_threshold"`
}

// HandleOptions updates the knowledge-first switch and threshold. Omitted
// fields keep their current value.
func (h *Handler) HandleOptions(w http.ResponseWriter, r *http.Request) {
	var req optionsRequest
	if !decode(w, r, &req) {
		return
	}
	st := h.engine.Status()
	useKB, threshold := st.UseKnowledgeFirst, st.KnowledgeThreshold
	if req.UseKnowledgeFirst != nil {
		useKB = *req.UseKnowledgeFirst
	}
	if req.KnowledgeThreshold != nil {
		threshold = *req.KnowledgeThreshold
	}
	h.engine.SetOptions(useKB, threshold)
	JSON(w, http.StatusOK, h.engine.Status())
}

// Reload targets accepted by HandleReload.
const (
	ReloadPrompt    = "prompt"
	ReloadMedia     = "media"
	ReloadRules     = "rules"
	ReloadKnowledge = "knowledge"
	ReloadAll       = "all"
)

// HandleReload rereads one group of operator-maintained files.
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	result := map[string]any{"target": target}
	var errs []error
	switch target {
	case ReloadPrompt:
		result["loaded"] = h.engine.ReloadPromptDocs()
	case ReloadMedia:
		errs = append(errs, h.engine.ReloadMediaLibrary())
	case ReloadRules:
		errs = append(errs, h.engine.ReloadRuleConfigs())
	case ReloadKnowledge:
		errs = append(errs, h.engine.ReloadKnowledge(r.Context()))
	case ReloadAll:
		result["loaded"] = h.engine.ReloadPromptDocs()
		errs = append(errs,
			h.engine.ReloadMediaLibrary(),
			h.engine.ReloadRuleConfigs(),
			h.engine.ReloadKnowledge(r.Context()))
	default:
		Error(w, http.StatusNotFound, "unknown reload target: "+target)
		return
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("reload finished with errors", "target", target, "error", err.Error())
		result["error"] = err.Error()
	}
	result["status"] = h.engine.Status()
	JSON(w, http.StatusOK, result)
}

// HandlePrune drops expired sessions and users.
func (h *Handler) HandlePrune(w http.ResponseWriter, r *http.Request) {
	sessions, users := h.engine.PruneExpired(r.Context())
	JSON(w, http.StatusOK, map[string]int{"sessions": sessions, "users": users})
}

func engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agent.ErrMissingIdentity), errors.Is(err, agent.ErrInvalidMedia):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		Error(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("engine request failed", "error", err.Error())
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
