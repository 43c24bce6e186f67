package pgstore

import (
	"context"
	"fmt"
	"time"

	"direktori/internal/queue"
)

// Touch refreshes last_updated on an in_progress item.
func (s *Store) Touch(ctx context.Context, id int64) error {
	return s.execOne(ctx, "touch",
		`UPDATE direktori_ids SET last_updated = NOW() WHERE id = $1 AND automation_status = 'in_progress'`, id)
}

// SetStatus overwrites the status of one item.
func (s *Store) SetStatus(ctx context.Context, id int64, status queue.Status) error {
	if !status.Valid() {
		return fmt.Errorf("set status: %w: %q", queue.ErrInvalidStatus, status)
	}
	return s.execOne(ctx, "set status",
		`UPDATE direktori_ids SET automation_status = $2, last_updated = NOW() WHERE id = $1`,
		id, string(status))
}

// ResetToNew sets status new for every listed business key.
func (s *Store) ResetToNew(ctx context.Context, businessKeys []string) (int64, error) {
	keys := queue.NormalizeKeys(businessKeys)
	if len(keys) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE direktori_ids SET automation_status = 'new', last_updated = NOW() WHERE idsbr = ANY($1)`,
		keys)
	if err != nil {
		return 0, fmt.Errorf("reset to new: %w", mapPgErr(err))
	}
	return tag.RowsAffected(), nil
}

// ReclaimStale releases in_progress items not updated for olderThan. The
// cutoff is taken from the server clock that also writes last_updated.
func (s *Store) ReclaimStale(ctx context.Context, olderThan time.Duration, note string) (int64, error) {
	if note == "" {
		note = queue.NoteStaleClaim
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE direktori_ids
         SET automation_status = 'new', error = left($2, 1000),
             attempt_count = attempt_count + 1, last_updated = NOW()
         WHERE automation_status = 'in_progress'
           AND last_updated < NOW() - ($1::bigint * INTERVAL '1 microsecond')`,
		olderThan.Microseconds(), queue.Truncate(note))
	if err != nil {
		return 0, fmt.Errorf("reclaim stale items: %w", mapPgErr(err))
	}
	return tag.RowsAffected(), nil
}
