package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nimbusdesk/console/internal/audit"
	"github.com/nimbusdesk/console/internal/models"
)

// appendAuditTx writes an audit entry inside an open transaction, so the entry
// commits or rolls back together with the transition that produced it.
func appendAuditTx(tx *sql.Tx, entry models.AuditEntry) error {
	_, err := tx.Exec(`
	INSERT INTO audit_log (id, ts, actor_id, event_type, resource_type, resource_id, outcome, details, source_ip)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UnixMilli(), entry.ActorID, entry.EventType,
		entry.ResourceType, entry.ResourceID, string(entry.Outcome),
		sql.NullString{String: entry.Details, Valid: entry.Details != ""},
		sql.NullString{String: entry.SourceIP, Valid: entry.SourceIP != ""},
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Append writes a standalone audit entry, durable before return. Used for
// events outside a request transition, such as authorization denials.
func (s *Store) Append(entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := appendAuditTx(tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit entry: %w", err)
	}
	return nil
}

// Query returns audit entries matching the filters, ordered by timestamp.
func (s *Store) Query(q audit.Query) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, ts, actor_id, event_type, resource_type, resource_id, outcome, details, source_ip
	FROM audit_log WHERE 1=1`
	var args []any

	if q.ActorID != "" {
		query += ` AND actor_id = ?`
		args = append(args, q.ActorID)
	}
	if q.ResourceID != "" {
		query += ` AND resource_id = ?`
		args = append(args, q.ResourceID)
	}
	if q.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, q.EventType)
	}
	if !q.Since.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.Until.UnixMilli())
	}
	query += ` ORDER BY ts, rowid`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			e        models.AuditEntry
			ts       int64
			outcome  string
			details  sql.NullString
			sourceIP sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &e.EventType, &e.ResourceType, &e.ResourceID, &outcome, &details, &sourceIP); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		e.Outcome = models.Outcome(outcome)
		if details.Valid {
			e.Details = details.String
		}
		if sourceIP.Valid {
			e.SourceIP = sourceIP.String
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return out, nil
}

// CountAudit returns the total number of audit entries.
func (s *Store) CountAudit() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return n, nil
}
