package pgstore

import (
	"context"
	"fmt"

	"direktori/internal/queue"
)

var claimSQL = `
WITH cte AS (
    SELECT id
    FROM direktori_ids
    WHERE automation_status = 'new'
    ORDER BY attempt_count ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
UPDATE direktori_ids d
SET automation_status = 'in_progress',
    assigned_to = $1,
    first_taken_at = COALESCE(d.first_taken_at, NOW()),
    last_updated = NOW()
FROM cte
WHERE d.id = cte.id
RETURNING ` + itemColumns("d.")

// Claim moves the next new item to in_progress for workerID.
func (s *Store) Claim(ctx context.Context, workerID string) (*queue.WorkItem, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim work item: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	item, err := scanItem(tx.QueryRow(ctx, claimSQL, workerID))
	if err != nil {
		if isNoRows(err) {
			return nil, queue.ErrNoWork
		}
		return nil, fmt.Errorf("claim work item: %w", mapPgErr(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("claim work item: commit: %w", err)
	}
	return item, nil
}

// MarkDone sets status done, storing note only when non-empty.
func (s *Store) MarkDone(ctx context.Context, id int64, note string) error {
	if note == "" {
		return s.execOne(ctx, "mark done",
			`UPDATE direktori_ids SET automation_status = 'done', last_updated = NOW() WHERE id = $1`, id)
	}
	return s.execOne(ctx, "mark done",
		`UPDATE direktori_ids SET automation_status = 'done', error = left($2, 1000), last_updated = NOW() WHERE id = $1`,
		id, queue.Truncate(note))
}

// MarkFailed sets status failed and counts the attempt.
func (s *Store) MarkFailed(ctx context.Context, id int64, errText string) error {
	return s.execOne(ctx, "mark failed",
		`UPDATE direktori_ids
         SET automation_status = 'failed', error = left($2, 1000),
             attempt_count = attempt_count + 1, last_updated = NOW()
         WHERE id = $1`,
		id, queue.Truncate(errText))
}

// MarkLocked sets status locked.
func (s *Store) MarkLocked(ctx context.Context, id int64, note string) error {
	if note == "" {
		note = queue.NoteLockedByOther
	}
	return s.execOne(ctx, "mark locked",
		`UPDATE direktori_ids SET automation_status = 'locked', error = left($2, 1000), last_updated = NOW() WHERE id = $1`,
		id, queue.Truncate(note))
}

// ReleaseToNew returns the item to the queue and counts the attempt.
func (s *Store) ReleaseToNew(ctx context.Context, id int64, note string) error {
	return s.execOne(ctx, "release to new",
		`UPDATE direktori_ids
         SET automation_status = 'new', error = left($2, 1000),
             attempt_count = attempt_count + 1, last_updated = NOW()
         WHERE id = $1`,
		id, queue.Truncate(note))
}
