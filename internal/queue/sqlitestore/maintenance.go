package sqlitestore

import (
	"context"
	"fmt"
	"time"

	"direktori/internal/queue"
)

// Touch refreshes last_updated on an in_progress item.
func (s *Store) Touch(ctx context.Context, id int64) error {
	return s.execOne(ctx, "touch",
		`UPDATE direktori_ids SET last_updated = ? WHERE id = ? AND automation_status = ?`,
		formatTime(s.now()), id, queue.StatusInProgress)
}

// SetStatus overwrites the status of one item.
func (s *Store) SetStatus(ctx context.Context, id int64, status queue.Status) error {
	if !status.Valid() {
		return fmt.Errorf("set status: %w: %q", queue.ErrInvalidStatus, status)
	}
	return s.execOne(ctx, "set status",
		`UPDATE direktori_ids SET automation_status = ?, last_updated = ? WHERE id = ?`,
		status, formatTime(s.now()), id)
}

// ResetToNew sets status new for every listed business key.
func (s *Store) ResetToNew(ctx context.Context, businessKeys []string) (int64, error) {
	keys := queue.NormalizeKeys(businessKeys)
	if len(keys) == 0 {
		return 0, nil
	}
	var total int64
	// SQLite caps bound parameters; reset in chunks inside one statement each.
	const chunk = 500
	for start := 0; start < len(keys); start += chunk {
		end := min(start+chunk, len(keys))
		batch := keys[start:end]
		args := make([]any, 0, len(batch)+2)
		args = append(args, queue.StatusNew, formatTime(s.now()))
		for _, key := range batch {
			args = append(args, key)
		}
		res, err := s.execWithRetry(ctx,
			`UPDATE direktori_ids SET automation_status = ?, last_updated = ?
             WHERE idsbr IN (`+makePlaceholders(len(batch))+`)`,
			args...)
		if err != nil {
			return total, fmt.Errorf("reset to new: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("reset to new: rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

// ReclaimStale releases in_progress items not updated for olderThan.
func (s *Store) ReclaimStale(ctx context.Context, olderThan time.Duration, note string) (int64, error) {
	if note == "" {
		note = queue.NoteStaleClaim
	}
	now := s.now()
	res, err := s.execWithRetry(ctx,
		`UPDATE direktori_ids
         SET automation_status = ?, error = ?, attempt_count = attempt_count + 1, last_updated = ?
         WHERE automation_status = ? AND last_updated < ?`,
		queue.StatusNew, queue.Truncate(note), formatTime(now),
		queue.StatusInProgress, formatTime(now.Add(-olderThan)))
	if err != nil {
		return 0, fmt.Errorf("reclaim stale items: %w", err)
	}
	return res.RowsAffected()
}
