package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/easeaico/storefront-cs/internal/knowledge"
	"github.com/easeaico/storefront-cs/internal/types"
)

func (h *Handler) registerKnowledge(r chi.Router) {
	r.Get("/", h.HandleListKnowledge)
	r.Post("/", h.HandleCreateKnowledge)
	r.Delete("/", h.HandleClearKnowledge)
	r.Get("/count", h.HandleCountKnowledge)
	r.Post("/import", h.HandleImportKnowledge)
	r.Get("/export", h.HandleExportKnowledge)
	r.Get("/{id}", h.HandleGetKnowledge)
	r.Patch("/{id}", h.HandleUpdateKnowledge)
	r.Delete("/{id}", h.HandleDeleteKnowledge)
}

// HandleListKnowledge lists every item, or the search hits for ?q=.
func (h *Handler) HandleListKnowledge(w http.ResponseWriter, r *http.Request) {
	items := h.kb.Search(r.URL.Query().Get("q"))
	if items == nil {
		items = []types.KnowledgeItem{}
	}
	JSON(w, http.StatusOK, items)
}

func (h *Handler) HandleCountKnowledge(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]int{"count": h.kb.Count()})
}

func (h *Handler) HandleCreateKnowledge(w http.ResponseWriter, r *http.Request) {
	var item types.KnowledgeItem
	if !decode(w, r, &item) {
		return
	}
	created, err := h.kb.Add(r.Context(), item)
	if err != nil {
		knowledgeError(w, err)
		return
	}
	JSON(w, http.StatusCreated, created)
}

func (h *Handler) HandleGetKnowledge(w http.ResponseWriter, r *http.Request) {
	item, err := h.kb.Get(chi.URLParam(r, "id"))
	if err != nil {
		knowledgeError(w, err)
		return
	}
	JSON(w, http.StatusOK, item)
}

func (h *Handler) HandleUpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	var patch knowledge.Patch
	if !decode(w, r, &patch) {
		return
	}
	item, err := h.kb.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		knowledgeError(w, err)
		return
	}
	JSON(w, http.StatusOK, item)
}

func (h *Handler) HandleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	if err := h.kb.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		knowledgeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleClearKnowledge(w http.ResponseWriter, r *http.Request) {
	if err := h.kb.Clear(r.Context()); err != nil {
		knowledgeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleImportKnowledge adds the items of a JSON array body.
func (h *Handler) HandleImportKnowledge(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}
	imported, skipped, err := h.kb.Import(r.Context(), data)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]int{"imported": imported, "skipped": skipped})
}

func (h *Handler) HandleExportKnowledge(w http.ResponseWriter, r *http.Request) {
	data, err := h.kb.Export()
	if err != nil {
		knowledgeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="knowledge.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func knowledgeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, knowledge.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, knowledge.ErrInvalidItem):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
