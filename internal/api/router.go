package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ankichat/ankichat/internal/api/recovery"
)

// NewRouter wires all HTTP routes behind the shared middleware.
func NewRouter(chat *ChatHandler, ops *OpsHandler, health *HealthHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(recovery.Middleware)
	r.Use(recovery.AccessLog)

	r.HandleFunc("/api/chat", chat.Chat).Methods(http.MethodPost)

	r.HandleFunc("/api/ops/compact/preview", ops.CompactPreview).Methods(http.MethodPost)
	r.HandleFunc("/api/ops/compact/apply", ops.CompactApply).Methods(http.MethodPost)
	r.HandleFunc("/api/ops/rollback", ops.Rollback).Methods(http.MethodPost)
	r.HandleFunc("/api/ops/decks", ops.ListDecks).Methods(http.MethodGet)

	r.HandleFunc("/api/health", health.CheckHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}
