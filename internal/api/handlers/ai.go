package handlers

import (
	"net/http"

	"github.com/loopteam/server/internal/ai"
	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/authz"
)

// AIHandler fronts the assistant features. Provider failures degrade to
// empty results with a 200, never a 5xx: the assistant is best effort.
type AIHandler struct {
	Service *ai.Service
	Guard   *authz.Guard
	Env     string
}

func (h *AIHandler) member(w http.ResponseWriter, r *http.Request) bool {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return false
	}
	if _, decision := h.Guard.Member(r.Context(), id, pathParam(r, "id")); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return false
	}
	return true
}

type summarizeRequest struct {
	Messages []string `json:"messages" validate:"required,min=1,max=500"`
}

func (h *AIHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	if !h.member(w, r) {
		return
	}
	var req summarizeRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	summary := h.Service.SummarizeThread(r.Context(), req.Messages)
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

type draftRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	Instructions string `json:"instructions" validate:"required,max=5000"`
}

func (h *AIHandler) Draft(w http.ResponseWriter, r *http.Request) {
	if !h.member(w, r) {
		return
	}
	var req draftRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	draft := h.Service.DraftDocument(r.Context(), req.Title, req.Instructions)
	writeJSON(w, http.StatusOK, map[string]any{"draft": draft})
}

type suggestTasksRequest struct {
	Notes string `json:"notes" validate:"required,max=20000"`
}

func (h *AIHandler) SuggestTasks(w http.ResponseWriter, r *http.Request) {
	if !h.member(w, r) {
		return
	}
	var req suggestTasksRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	suggestions := h.Service.SuggestTasks(r.Context(), req.Notes)
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": suggestions})
}
