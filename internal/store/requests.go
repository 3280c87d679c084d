package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nimbusdesk/console/internal/models"
	"github.com/nimbusdesk/console/internal/wferr"
)

const requestColumns = `id, action_id, requester_id, parameters, risk, status, version,
       created_at, expires_at, decided_at, decided_by, execution_result`

// Insert persists a new request together with its creation audit entry, in one
// transaction. The request is committed only if the audit write succeeds.
func (s *Store) Insert(req *models.ActionRequest, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := json.Marshal(req.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
	INSERT INTO action_requests (
		id, action_id, requester_id, parameters, risk, status, version,
		created_at, expires_at, decided_at, decided_by, execution_result
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.ActionID, req.RequesterID, string(params), req.Risk.String(),
		string(req.Status), req.Version,
		req.CreatedAt.UnixMilli(), req.ExpiresAt.UnixMilli(),
		nullTime(req.DecidedAt),
		sql.NullString{String: req.DecidedBy, Valid: req.DecidedBy != ""},
		sql.NullString{String: req.ExecutionResult, Valid: req.ExecutionResult != ""},
	)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}

	if err := appendAuditTx(tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit request insert: %w", err)
	}
	return nil
}

// Get retrieves a request by id. Returns wferr.ErrNotFound if absent.
func (s *Store) Get(id string) (*models.ActionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+requestColumns+` FROM action_requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, wferr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// Transition applies a state change as an atomic compare-and-swap on the
// request's version, guarded by the expected current status, and writes the
// audit entry in the same transaction. On success the stored version becomes
// expectedVersion+1 and the updated request is returned.
//
// Failure mapping: a missing row is wferr.ErrNotFound; a version mismatch is
// wferr.ErrStaleRequest (another transition won the race); a status that moved
// on while the version still matches is wferr.ErrAlreadyDecided.
func (s *Store) Transition(req *models.ActionRequest, expectedVersion int64, from models.RequestStatus, entry models.AuditEntry) (*models.ActionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
	UPDATE action_requests
	SET status = ?, version = version + 1, decided_at = ?, decided_by = ?, execution_result = ?
	WHERE id = ? AND version = ? AND status = ?`,
		string(req.Status),
		nullTime(req.DecidedAt),
		sql.NullString{String: req.DecidedBy, Valid: req.DecidedBy != ""},
		sql.NullString{String: req.ExecutionResult, Valid: req.ExecutionResult != ""},
		req.ID, expectedVersion, string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update request: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return nil, s.diagnoseConflict(tx, req.ID, expectedVersion)
	}

	if err := appendAuditTx(tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	updated := *req
	updated.Version = expectedVersion + 1
	return &updated, nil
}

// diagnoseConflict classifies a failed CAS inside the open transaction. The
// version comparison comes first: a caller holding an outdated version learns
// its view is stale, whatever the request's status has become; AlreadyDecided
// is reserved for callers presenting the current version of a request whose
// status has already moved on.
func (s *Store) diagnoseConflict(tx *sql.Tx, id string, expectedVersion int64) error {
	var (
		version int64
		status  string
	)
	err := tx.QueryRow(`SELECT version, status FROM action_requests WHERE id = ?`, id).Scan(&version, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("request %s: %w", id, wferr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to diagnose conflict: %w", err)
	}
	if version != expectedVersion {
		return fmt.Errorf("request %s is at version %d, not %d: %w", id, version, expectedVersion, wferr.ErrStaleRequest)
	}
	return fmt.Errorf("request %s is %s: %w", id, status, wferr.ErrAlreadyDecided)
}

// ListByStatus returns requests in the given status, oldest first.
func (s *Store) ListByStatus(status models.RequestStatus) ([]*models.ActionRequest, error) {
	return s.list(`SELECT `+requestColumns+` FROM action_requests WHERE status = ? ORDER BY created_at`, string(status))
}

// ListByRequester returns all requests submitted by a principal, oldest first.
func (s *Store) ListByRequester(requesterID string) ([]*models.ActionRequest, error) {
	return s.list(`SELECT `+requestColumns+` FROM action_requests WHERE requester_id = ? ORDER BY created_at`, requesterID)
}

// ListOverdue returns pending requests whose expiry has passed.
func (s *Store) ListOverdue(now time.Time) ([]*models.ActionRequest, error) {
	return s.list(`SELECT `+requestColumns+` FROM action_requests WHERE status = 'pending' AND expires_at < ? ORDER BY created_at`, now.UnixMilli())
}

func (s *Store) list(query string, args ...any) ([]*models.ActionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []*models.ActionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.ActionRequest, error) {
	var (
		req       models.ActionRequest
		params    string
		risk      string
		status    string
		createdAt int64
		expiresAt int64
		decidedAt sql.NullInt64
		decidedBy sql.NullString
		result    sql.NullString
	)

	err := row.Scan(
		&req.ID, &req.ActionID, &req.RequesterID, &params, &risk, &status, &req.Version,
		&createdAt, &expiresAt, &decidedAt, &decidedBy, &result,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(params), &req.Parameters); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	riskLevel, ok := models.ParseRiskLevel(risk)
	if !ok {
		return nil, fmt.Errorf("stored request has unknown risk %q", risk)
	}
	req.Risk = riskLevel
	req.Status = models.RequestStatus(status)
	req.CreatedAt = time.UnixMilli(createdAt).UTC()
	req.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	if decidedAt.Valid {
		t := time.UnixMilli(decidedAt.Int64).UTC()
		req.DecidedAt = &t
	}
	if decidedBy.Valid {
		req.DecidedBy = decidedBy.String
	}
	if result.Valid {
		req.ExecutionResult = result.String
	}
	return &req, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
