// Package wferr provides the error taxonomy of the authorization and approval
// core: validation, authorization, and concurrency failures. Executor failures
// are not errors at this level; they end the request in the FAILED state.
package wferr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes. Callers branch with errors.Is.
var (
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrStaleRequest      = errors.New("stale request version")
	ErrAlreadyDecided    = errors.New("request already decided")
	ErrNotFound          = errors.New("request not found")
	ErrUnknownAction     = errors.New("unknown action")
)

// ValidationError carries the offending field so the caller can act on it.
// Always the caller's fault; never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameters: field %q: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidParameters }

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// AuthzError records which capability was missing. Surfaced as-is, never
// silently downgraded to a lower-risk action.
type AuthzError struct {
	ActorID string
	Missing string
}

func (e *AuthzError) Error() string {
	return fmt.Sprintf("unauthorized: actor %s lacks %s", e.ActorID, e.Missing)
}

func (e *AuthzError) Unwrap() error { return ErrUnauthorized }

// NewAuthzError creates an AuthzError for an actor and missing capability.
func NewAuthzError(actorID, missing string) *AuthzError {
	return &AuthzError{ActorID: actorID, Missing: missing}
}

// IsConcurrency reports whether the error is one of the concurrency-class
// failures, where the caller should re-fetch and retry against fresh state.
func IsConcurrency(err error) bool {
	return errors.Is(err, ErrStaleRequest) || errors.Is(err, ErrAlreadyDecided)
}
