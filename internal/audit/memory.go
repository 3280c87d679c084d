package audit

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nimbusdesk/console/internal/models"
)

// MemoryLog is an in-process audit sink. Used for standalone authorization
// decisions that do not pass through the request store, and in tests.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
	logger  zerolog.Logger
}

// NewMemoryLog creates an in-memory audit log.
func NewMemoryLog(logger zerolog.Logger) *MemoryLog {
	return &MemoryLog{
		entries: make([]models.AuditEntry, 0, 1000),
		logger:  logger.With().Str("component", "audit").Logger(),
	}
}

// Append records an entry.
func (l *MemoryLog) Append(entry models.AuditEntry) error {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	l.logger.Info().
		Str("actor_id", entry.ActorID).
		Str("event", entry.EventType).
		Str("resource_id", entry.ResourceID).
		Str("outcome", string(entry.Outcome)).
		Msg("audit event")

	return nil
}

// Query returns matching entries sorted by timestamp.
func (l *MemoryLog) Query(q Query) ([]models.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.AuditEntry
	for _, e := range l.entries {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Count returns the total number of entries.
func (l *MemoryLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
