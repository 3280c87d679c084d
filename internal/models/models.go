// Package models holds the shared domain types for the authorization and
// action-approval core.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RiskLevel classifies the potential impact of a remote-control action.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskSafe:
		return "safe"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes the risk level in its string form.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON parses the string form of a risk level.
func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseRiskLevel(s)
	if !ok {
		return fmt.Errorf("unknown risk level %q", s)
	}
	*r = parsed
	return nil
}

// ParseRiskLevel converts a catalog string into a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch s {
	case "safe":
		return RiskSafe, true
	case "low":
		return RiskLow, true
	case "medium":
		return RiskMedium, true
	case "high":
		return RiskHigh, true
	}
	return RiskSafe, false
}

// Tier is the coarse principal classification driving the confirmation policy.
type Tier string

const (
	TierContractor Tier = "contractor"
	TierStaff      Tier = "staff"
	TierManager    Tier = "manager"
	TierAdmin      Tier = "admin"
)

// RequestStatus represents the lifecycle state of an ActionRequest.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusDenied    RequestStatus = "denied"
	StatusExpired   RequestStatus = "expired"
	StatusExecuting RequestStatus = "executing"
	StatusCompleted RequestStatus = "completed"
	StatusFailed    RequestStatus = "failed"
)

// Terminal reports whether no further transition is possible from the status.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusDenied, StatusExpired, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Principal is the authenticated actor being authorized.
type Principal struct {
	ID        string `json:"id" yaml:"id"`
	Role      string `json:"role" yaml:"role"`
	ManagerID string `json:"manager_id,omitempty" yaml:"manager_id,omitempty"`
	IsActive  bool   `json:"is_active" yaml:"is_active"`
}

// ActionRequest is a proposed action travelling through the approval workflow.
// Owned exclusively by the workflow; mutated only through its transitions.
type ActionRequest struct {
	ID              string            `json:"id"`
	ActionID        string            `json:"action_id"`
	RequesterID     string            `json:"requester_id"`
	Parameters      map[string]string `json:"parameters,omitempty"`
	Risk            RiskLevel         `json:"risk"`
	Status          RequestStatus     `json:"status"`
	Version         int64             `json:"version"`
	CreatedAt       time.Time         `json:"created_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
	DecidedAt       *time.Time        `json:"decided_at,omitempty"`
	DecidedBy       string            `json:"decided_by,omitempty"`
	ExecutionResult string            `json:"execution_result,omitempty"`
}

// Outcome classifies an audit event's result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeDenied  Outcome = "denied"
)

// AuditEntry records a single authorization decision or workflow transition.
// Append-only: once written it is never mutated or deleted by this subsystem.
type AuditEntry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ActorID      string    `json:"actor_id"`
	EventType    string    `json:"event_type"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Outcome      Outcome   `json:"outcome"`
	Details      string    `json:"details,omitempty"`
	SourceIP     string    `json:"source_ip,omitempty"`
}
