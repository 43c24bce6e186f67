package queue

import "errors"

var (
	// ErrNoWork is returned by Claim when no item is in status new.
	ErrNoWork = errors.New("no claimable work items")
	// ErrNotFound is returned by reconcile and admin operations for an unknown id.
	ErrNotFound = errors.New("work item not found")
	// ErrDuplicateKey is returned by Insert when the business key already exists.
	ErrDuplicateKey = errors.New("business key already exists")
	// ErrInvalidStatus is returned for a status outside the lifecycle.
	ErrInvalidStatus = errors.New("invalid automation status")
	// ErrEmptyBusinessKey is returned by Insert for a blank business key.
	ErrEmptyBusinessKey = errors.New("business key is required")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
