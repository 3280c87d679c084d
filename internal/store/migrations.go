package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	return s.migrateV1()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS action_requests (
		id               TEXT PRIMARY KEY,
		action_id        TEXT NOT NULL,
		requester_id     TEXT NOT NULL,
		parameters       TEXT NOT NULL DEFAULT '{}',
		risk             TEXT NOT NULL,
		status           TEXT NOT NULL DEFAULT 'pending',
		version          INTEGER NOT NULL DEFAULT 0,
		created_at       INTEGER NOT NULL,
		expires_at       INTEGER NOT NULL,
		decided_at       INTEGER,
		decided_by       TEXT,
		execution_result TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_requests_status ON action_requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_requester ON action_requests(requester_id);
	CREATE INDEX IF NOT EXISTS idx_requests_pending_expiry ON action_requests(expires_at) WHERE status = 'pending';

	CREATE TABLE IF NOT EXISTS audit_log (
		id            TEXT PRIMARY KEY,
		ts            INTEGER NOT NULL,
		actor_id      TEXT NOT NULL,
		event_type    TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id   TEXT NOT NULL,
		outcome       TEXT NOT NULL,
		details       TEXT,
		source_ip     TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts);
	CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_log(resource_id);
	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor_id);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}

	return nil
}
