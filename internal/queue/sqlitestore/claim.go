package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"direktori/internal/queue"
)

var claimQuery = `UPDATE direktori_ids
SET automation_status = ?,
    assigned_to = ?,
    first_taken_at = COALESCE(first_taken_at, ?),
    last_updated = ?
WHERE id = (
    SELECT id FROM direktori_ids
    WHERE automation_status = ?
    ORDER BY attempt_count ASC, id ASC
    LIMIT 1
)
RETURNING ` + itemColumns

// Claim moves the next new item to in_progress for workerID.
func (s *Store) Claim(ctx context.Context, workerID string) (*queue.WorkItem, error) {
	ctx = ensureContext(ctx)
	var item *queue.WorkItem
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		now := formatTime(s.now())
		claimed, err := scanItem(tx.QueryRowContext(ctx, claimQuery,
			queue.StatusInProgress, workerID, now, now, queue.StatusNew))
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		item = claimed
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, queue.ErrNoWork
	}
	if err != nil {
		return nil, fmt.Errorf("claim work item: %w", err)
	}
	return item, nil
}

// MarkDone sets status done, storing note only when non-empty.
func (s *Store) MarkDone(ctx context.Context, id int64, note string) error {
	if note == "" {
		return s.execOne(ctx, "mark done",
			`UPDATE direktori_ids SET automation_status = ?, last_updated = ? WHERE id = ?`,
			queue.StatusDone, formatTime(s.now()), id)
	}
	return s.execOne(ctx, "mark done",
		`UPDATE direktori_ids SET automation_status = ?, error = ?, last_updated = ? WHERE id = ?`,
		queue.StatusDone, queue.Truncate(note), formatTime(s.now()), id)
}

// MarkFailed sets status failed and counts the attempt.
func (s *Store) MarkFailed(ctx context.Context, id int64, errText string) error {
	return s.execOne(ctx, "mark failed",
		`UPDATE direktori_ids
         SET automation_status = ?, error = ?, attempt_count = attempt_count + 1, last_updated = ?
         WHERE id = ?`,
		queue.StatusFailed, queue.Truncate(errText), formatTime(s.now()), id)
}

// MarkLocked sets status locked.
func (s *Store) MarkLocked(ctx context.Context, id int64, note string) error {
	if note == "" {
		note = queue.NoteLockedByOther
	}
	return s.execOne(ctx, "mark locked",
		`UPDATE direktori_ids SET automation_status = ?, error = ?, last_updated = ? WHERE id = ?`,
		queue.StatusLocked, queue.Truncate(note), formatTime(s.now()), id)
}

// ReleaseToNew returns the item to the queue and counts the attempt.
func (s *Store) ReleaseToNew(ctx context.Context, id int64, note string) error {
	return s.execOne(ctx, "release to new",
		`UPDATE direktori_ids
         SET automation_status = ?, error = ?, attempt_count = attempt_count + 1, last_updated = ?
         WHERE id = ?`,
		queue.StatusNew, queue.Truncate(note), formatTime(s.now()), id)
}
