package queue

import (
	"context"
	"strings"
	"time"
)

// Claimer hands out exclusive claims on new items.
type Claimer interface {
	// Claim moves the lowest (attempt_count, id) new item to in_progress for
	// workerID and returns it. It returns ErrNoWork when nothing is claimable.
	Claim(ctx context.Context, workerID string) (*WorkItem, error)
}

// Reconciler records the result of processing a claimed item. Each call is
// an unconditional single-row update keyed by id.
type Reconciler interface {
	// MarkDone sets status done. A non-empty note is stored as an annotation.
	MarkDone(ctx context.Context, id int64, note string) error
	// MarkFailed sets status failed, stores errText and increments attempt_count.
	MarkFailed(ctx context.Context, id int64, errText string) error
	// MarkLocked sets status locked and stores note (default NoteLockedByOther).
	MarkLocked(ctx context.Context, id int64, note string) error
	// ReleaseToNew sets status new, stores note and increments attempt_count.
	ReleaseToNew(ctx context.Context, id int64, note string) error
}

// Store is the full work item store used by workers and operators.
type Store interface {
	Claimer
	Reconciler

	// Touch refreshes last_updated on an in_progress item so stale sweeps
	// leave a live claim alone.
	Touch(ctx context.Context, id int64) error
	// SetStatus overwrites the status of one item without other side effects.
	SetStatus(ctx context.Context, id int64, status Status) error
	// ResetToNew sets status new for every item whose business key is listed
	// and returns the number of rows changed.
	ResetToNew(ctx context.Context, businessKeys []string) (int64, error)
	// ReclaimStale releases in_progress items with no update for olderThan
	// back to new, incrementing attempt_count. The age is measured on the
	// store's own clock.
	ReclaimStale(ctx context.Context, olderThan time.Duration, note string) (int64, error)

	Insert(ctx context.Context, businessKey string, payload Payload) (*WorkItem, error)
	// GetByID returns nil, nil when the id is unknown.
	GetByID(ctx context.Context, id int64) (*WorkItem, error)
	// GetByBusinessKey returns nil, nil when the key is unknown.
	GetByBusinessKey(ctx context.Context, businessKey string) (*WorkItem, error)
	List(ctx context.Context, filter ListFilter) ([]*WorkItem, error)
	Stats(ctx context.Context) (map[Status]int, error)

	Ping(ctx context.Context) error
	Close() error
}

// NormalizeKeys trims, drops blanks, and de-duplicates business keys while
// preserving input order.
func NormalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		trimmed := trimKey(key)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func trimKey(key string) string {
	return strings.TrimSpace(strings.TrimPrefix(key, "\ufeff"))
}
