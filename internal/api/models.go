// Package api exposes the approval core over HTTP: request submission,
// decisions, pending queues, the audit trail, and the UI visibility probe.
package api

import (
	"github.com/nimbusdesk/console/internal/models"
)

// --- Request DTOs ---

// CreateRequestBody is the payload for POST /api/v1/requests.
type CreateRequestBody struct {
	ActionID   string            `json:"action_id"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// DecisionBody is the payload for POST /api/v1/requests/:id/decision. Version
// is the request version the caller last observed; the decision fails with a
// conflict if another decision landed first.
type DecisionBody struct {
	Approve bool  `json:"approve"`
	Version int64 `json:"version"`
}

// VisibilityBody is the payload for POST /api/v1/visibility.
type VisibilityBody struct {
	Required []string `json:"required"`
	MatchAll bool     `json:"match_all"`
}

// --- Response DTOs ---

// RequestResponse wraps a single action request.
type RequestResponse struct {
	Request *models.ActionRequest `json:"request"`
}

// RequestListResponse wraps a list of action requests.
type RequestListResponse struct {
	Requests []*models.ActionRequest `json:"requests"`
	Total    int                     `json:"total"`
}

// ActionView is a catalog entry as presented to the calling principal.
// RequiresApproval reflects the caller's tier: the same action may auto-execute
// for staff and queue for a contractor.
type ActionView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Risk             string `json:"risk"`
	RequiresApproval bool   `json:"requires_approval"`
	EstimatedSeconds int    `json:"estimated_seconds,omitempty"`
}

// ActionListResponse wraps the action catalog.
type ActionListResponse struct {
	Actions []ActionView `json:"actions"`
}

// VisibilityResponse answers a visibility probe.
type VisibilityResponse struct {
	Visible bool `json:"visible"`
}

// CapabilitiesResponse describes the calling principal's authority.
type CapabilitiesResponse struct {
	PrincipalID  string   `json:"principal_id"`
	Role         string   `json:"role"`
	Tier         string   `json:"tier"`
	Permissions  []string `json:"permissions,omitempty"`
	Universal    bool     `json:"universal"`
	CanDecide    bool     `json:"can_decide"`
	DecisionTier string   `json:"decision_tier,omitempty"`
}

// AuditListResponse wraps audit trail entries.
type AuditListResponse struct {
	Entries []models.AuditEntry `json:"entries"`
	Total   int                 `json:"total"`
}

// ProblemDetail is an RFC 7807 Problem Detail error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
