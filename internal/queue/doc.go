// Package queue defines the shared work queue of registry rows that worker
// pools claim, submit, and reconcile.
//
// It owns the WorkItem model, the status lifecycle, note truncation, and the
// Store contract implemented by the pgstore (fleet-wide PostgreSQL) and
// sqlitestore (single-host) backends. Every backend must give claims the same
// guarantees: one row per claim, never handed to two workers, lowest
// attempt_count first with id as the tie-break, and first_taken_at stamped
// exactly once.
//
// Items are never deleted by the queue. Operators move them back to new with
// ResetToNew or SetStatus.
package queue
