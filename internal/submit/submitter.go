package submit

import (
	"context"

	"direktori/internal/queue"
)

// Submitter drives the registry edit form for one item at a time.
type Submitter interface {
	Submit(ctx context.Context, item *queue.WorkItem) Outcome
	Close() error
}

// Factory creates an isolated Submitter for the worker with the given identity.
type Factory interface {
	NewSubmitter(ctx context.Context, workerID string) (Submitter, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, workerID string) (Submitter, error)

// NewSubmitter calls f.
func (f FactoryFunc) NewSubmitter(ctx context.Context, workerID string) (Submitter, error) {
	return f(ctx, workerID)
}

// Func adapts a function to a Submitter with a no-op Close.
type Func func(ctx context.Context, item *queue.WorkItem) Outcome

// Submit calls f.
func (f Func) Submit(ctx context.Context, item *queue.WorkItem) Outcome {
	return f(ctx, item)
}

// Close implements Submitter.
func (Func) Close() error { return nil }
