package store

import (
	"fmt"
	"time"
)

// DBSizeBytes returns the database size in bytes. The operational signal to
// watch when retention is disabled and the trail grows without bound.
func (s *Store) DBSizeBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pageCount int64
	var pageSize int64

	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("failed to get page size: %w", err)
	}

	return pageCount * pageSize, nil
}

// PruneAudit deletes audit entries older than the cutoff and returns the
// number removed. The core never updates or deletes audit rows on its own;
// retention is an operator decision and stays disabled unless a window is
// configured.
func (s *Store) PruneAudit(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM audit_log WHERE ts < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned entries: %w", err)
	}
	if n > 0 {
		s.logger.Info().Int64("pruned", n).Time("older_than", olderThan).Msg("audit retention sweep")
	}
	return n, nil
}
