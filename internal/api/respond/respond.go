// Package respond writes JSON responses and maps the domain error taxonomy
// onto HTTP status codes.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ankichat/ankichat/internal/model"
)

// ErrorResponse is the standard error body. Suggestions carry valid deck
// names when a fuzzy lookup failed.
type ErrorResponse struct {
	Error       string   `json:"error"`
	Code        int      `json:"code"`
	Message     string   `json:"message,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteError writes a standardized error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
	})
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteDomainError maps a typed domain error to its HTTP status:
// validation and token lifecycle violations are 400/409/410, unresolved
// decks 404 (with suggestions), unavailable collaborators 502/503.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case model.IsValidation(err):
		WriteError(w, http.StatusBadRequest, err.Error())
	case model.IsNotFound(err):
		WriteJSON(w, http.StatusNotFound, ErrorResponse{
			Error:       http.StatusText(http.StatusNotFound),
			Code:        http.StatusNotFound,
			Message:     err.Error(),
			Suggestions: model.SuggestionsFrom(err),
		})
	case model.IsJobInProgress(err):
		WriteError(w, http.StatusConflict, err.Error())
	case model.IsAlreadyApplied(err):
		WriteError(w, http.StatusConflict, err.Error())
	case model.IsInvalidToken(err):
		WriteError(w, http.StatusBadRequest, err.Error())
	case model.IsTokenExpired(err):
		WriteError(w, http.StatusGone, err.Error())
	case model.IsBackendUnavailable(err):
		WriteError(w, http.StatusBadGateway, err.Error())
	case model.IsModelFailure(err):
		WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
