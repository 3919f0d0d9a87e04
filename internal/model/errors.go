package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks user-correctable input problems.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a deck or field that could not be resolved.
	ErrNotFound = errors.New("not found")
	// ErrJobInProgress marks a preview refused because a live job already
	// covers the same deck+field pair.
	ErrJobInProgress = errors.New("job in progress")

	// Token lifecycle violations.
	ErrInvalidToken   = errors.New("invalid confirmation token")
	ErrTokenExpired   = errors.New("confirmation token expired")
	ErrAlreadyApplied = errors.New("confirmation token already applied")

	// ErrBackendUnavailable marks a transport failure talking to AnkiConnect.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrModelFailure marks an LLM call that failed or returned unparseable output.
	ErrModelFailure = errors.New("model failure")
)

// NotFoundError carries suggestions so callers can surface alternatives
// instead of silently picking one.
type NotFoundError struct {
	Kind        string
	Requested   string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("%s %q not found", e.Kind, e.Requested)
	}
	return fmt.Sprintf("%s %q not found (did you mean %v?)", e.Kind, e.Requested, e.Suggestions)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Validationf builds a user-correctable validation error.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func IsValidation(err error) bool         { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool           { return errors.Is(err, ErrNotFound) }
func IsJobInProgress(err error) bool      { return errors.Is(err, ErrJobInProgress) }
func IsInvalidToken(err error) bool       { return errors.Is(err, ErrInvalidToken) }
func IsTokenExpired(err error) bool       { return errors.Is(err, ErrTokenExpired) }
func IsAlreadyApplied(err error) bool     { return errors.Is(err, ErrAlreadyApplied) }
func IsBackendUnavailable(err error) bool { return errors.Is(err, ErrBackendUnavailable) }
func IsModelFailure(err error) bool       { return errors.Is(err, ErrModelFailure) }

// SuggestionsFrom extracts deck suggestions when err wraps a NotFoundError.
func SuggestionsFrom(err error) []string {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Suggestions
	}
	return nil
}
