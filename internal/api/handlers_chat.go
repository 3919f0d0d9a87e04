package api

import (
	"encoding/json"
	"net/http"

	"github.com/ankichat/ankichat/internal/api/respond"
	"github.com/ankichat/ankichat/internal/api/validate"
	"github.com/ankichat/ankichat/internal/assistant"
	"github.com/ankichat/ankichat/internal/metrics"
)

// ChatRequest is the chat endpoint's wire shape.
type ChatRequest struct {
	Message      string `json:"message"`
	Confirm      bool   `json:"confirm,omitempty"`
	ConfirmToken string `json:"confirm_token,omitempty"`
}

// ChatHandler turns HTTP chat requests into routed assistant calls.
type ChatHandler struct {
	assistant *assistant.Assistant
}

func NewChatHandler(a *assistant.Assistant) *ChatHandler {
	return &ChatHandler{assistant: a}
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}

	message := req.Message
	if req.Confirm && req.ConfirmToken != "" {
		// explicit confirm flag counts as a bare confirmation signal
		message = "yes"
	}
	if err := validate.Message(message); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	reply := h.assistant.Route(r.Context(), message, req.ConfirmToken)
	metrics.ChatRequests.WithLabelValues(reply.Action).Inc()
	respond.WriteJSON(w, http.StatusOK, reply)
}
