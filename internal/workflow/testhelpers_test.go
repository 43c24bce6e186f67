package workflow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"direktori/internal/logging"
	"direktori/internal/queue"
	"direktori/internal/retry"
	"direktori/internal/submit"
	"direktori/internal/testsupport"
	"direktori/internal/workflow"
)

// scriptedBackend hands out submitters that answer from a per-key script.
// The last outcome in a script repeats.
type scriptedBackend struct {
	mu       sync.Mutex
	scripts  map[string][]submit.Outcome
	fallback submit.Outcome
	calls    map[string]int
	workers  map[string]int
	closed   atomic.Int32
	hook     func(ctx context.Context, item *queue.WorkItem, call int)
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{
		scripts:  make(map[string][]submit.Outcome),
		fallback: submit.Success(),
		calls:    make(map[string]int),
		workers:  make(map[string]int),
	}
}

func (b *scriptedBackend) script(key string, outcomes ...submit.Outcome) {
	b.mu.Lock()
	b.scripts[key] = outcomes
	b.mu.Unlock()
}

func (b *scriptedBackend) callsFor(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

func (b *scriptedBackend) NewSubmitter(_ context.Context, workerID string) (submit.Submitter, error) {
	return &scriptedSubmitter{backend: b, workerID: workerID}, nil
}

type scriptedSubmitter struct {
	backend  *scriptedBackend
	workerID string
}

func (s *scriptedSubmitter) Submit(ctx context.Context, item *queue.WorkItem) submit.Outcome {
	b := s.backend
	b.mu.Lock()
	b.calls[item.BusinessKey]++
	b.workers[s.workerID]++
	call := b.calls[item.BusinessKey]
	out := b.fallback
	if script := b.scripts[item.BusinessKey]; len(script) > 0 {
		idx := min(call-1, len(script)-1)
		out = script[idx]
	}
	hook := b.hook
	b.mu.Unlock()

	if hook != nil {
		hook(ctx, item, call)
	}
	return out
}

func (s *scriptedSubmitter) Close() error {
	s.backend.closed.Add(1)
	return nil
}

func testOptions(workers int) workflow.Options {
	return workflow.Options{
		PoolName: "test-pool",
		Workers:  workers,
		Retry:    retry.Policy{MaxAttempts: 2, Retryable: retry.InfraOnly},
	}
}

func newManager(t *testing.T, store queue.Store, factory submit.Factory, opts workflow.Options) *workflow.Manager {
	t.Helper()
	mgr, err := workflow.NewManager(store, factory, logging.NewNop(), opts)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func openStore(t *testing.T) queue.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return testsupport.MustOpenStore(t, cfg)
}

// flakyStore injects failures in front of a real store.
type flakyStore struct {
	queue.Store
	claimFailures atomic.Int32
	failMarkDone  atomic.Bool
}

var errInjected = errors.New("connection reset by peer")

func (s *flakyStore) Claim(ctx context.Context, workerID string) (*queue.WorkItem, error) {
	if s.claimFailures.Load() > 0 {
		s.claimFailures.Add(-1)
		return nil, errInjected
	}
	return s.Store.Claim(ctx, workerID)
}

func (s *flakyStore) MarkDone(ctx context.Context, id int64, note string) error {
	if s.failMarkDone.Load() {
		return errInjected
	}
	return s.Store.MarkDone(ctx, id, note)
}
