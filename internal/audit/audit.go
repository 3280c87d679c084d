// Package audit defines the append-only audit trail contract. Entries are
// durable before the originating transition commits and are never updated or
// deleted by this subsystem.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/nimbusdesk/console/internal/models"
)

// Event types recorded by the core.
const (
	EventRequestCreated = "request.created"
	EventAutoApproved   = "request.auto_approved"
	EventApproved       = "request.approved"
	EventDenied         = "request.denied"
	EventCancelled      = "request.cancelled"
	EventExpired        = "request.expired"
	EventExecuting      = "request.executing"
	EventCompleted      = "request.completed"
	EventFailed         = "request.failed"
	EventAuthzDenied    = "authz.denied"
)

// ResourceActionRequest is the resource type for workflow entries.
const ResourceActionRequest = "action_request"

// Sink accepts audit entries. Append must be durable before it returns; a
// failed append aborts the transition that produced the entry.
type Sink interface {
	Append(entry models.AuditEntry) error
}

// Query filters audit entries. Zero values match everything. Consumers sort by
// timestamp; log order does not reflect causal order across requests.
type Query struct {
	ActorID    string
	ResourceID string
	EventType  string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Reader serves the reporting path.
type Reader interface {
	Query(q Query) ([]models.AuditEntry, error)
}

// NewEntry builds an entry with a fresh id and timestamp.
func NewEntry(actorID, eventType, resourceID string, outcome models.Outcome, details string) models.AuditEntry {
	return models.AuditEntry{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		ActorID:      actorID,
		EventType:    eventType,
		ResourceType: ResourceActionRequest,
		ResourceID:   resourceID,
		Outcome:      outcome,
		Details:      details,
	}
}

// Matches reports whether the entry satisfies the query filters.
func (q Query) Matches(e models.AuditEntry) bool {
	if q.ActorID != "" && e.ActorID != q.ActorID {
		return false
	}
	if q.ResourceID != "" && e.ResourceID != q.ResourceID {
		return false
	}
	if q.EventType != "" && e.EventType != q.EventType {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
		return false
	}
	return true
}
