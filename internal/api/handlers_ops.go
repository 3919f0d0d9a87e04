package api

import (
	"encoding/json"
	"net/http"

	"github.com/ankichat/ankichat/internal/api/respond"
	"github.com/ankichat/ankichat/internal/api/validate"
	"github.com/ankichat/ankichat/internal/assistant"
	"github.com/ankichat/ankichat/internal/model"
)

// DeckLister is re-exported here so the ops handler can be wired with fakes.
type DeckLister = assistant.DeckLister

// OpsHandler exposes the direct operation endpoints used by tooling (ankictl)
// and tests, bypassing intent parsing.
type OpsHandler struct {
	compactor assistant.Compactor
	decks     DeckLister
}

func NewOpsHandler(c assistant.Compactor, d DeckLister) *OpsHandler {
	return &OpsHandler{compactor: c, decks: d}
}

// CompactPreviewRequest is the wire shape for POST /api/ops/compact/preview.
type CompactPreviewRequest struct {
	Deck         string `json:"deck"`
	Field        string `json:"field"`
	PreviewCount int    `json:"previewCount"`
	Limit        int    `json:"limit"`
}

// CompactPreview handles POST /api/ops/compact/preview.
func (h *OpsHandler) CompactPreview(w http.ResponseWriter, r *http.Request) {
	var req CompactPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.DeckName(req.Deck); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.FieldName(req.Field); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	field := req.Field
	if field == "" {
		field = "Example"
	}

	res, err := h.compactor.Preview(r.Context(), req.Deck, field, req.PreviewCount, req.Limit)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// CompactApply handles POST /api/ops/compact/apply.
func (h *OpsHandler) CompactApply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfirmToken string `json:"confirmToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.Token(req.ConfirmToken); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	summary, err := h.compactor.Apply(r.Context(), req.ConfirmToken)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, summary)
}

// Rollback handles POST /api/ops/rollback.
func (h *OpsHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Deck  string `json:"deck"`
		Field string `json:"field"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.DeckName(req.Deck); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if req.Field == "" {
		req.Field = "Example"
	}

	summary, err := h.compactor.Rollback(r.Context(), req.Deck, req.Field)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, summary)
}

// ListDecks handles GET /api/ops/decks.
func (h *OpsHandler) ListDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := h.decks.List(r.Context())
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	if decks == nil {
		decks = []model.Deck{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"decks": decks, "count": len(decks)})
}
