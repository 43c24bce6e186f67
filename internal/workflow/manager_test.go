package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"direktori/internal/logging"
	"direktori/internal/queue"
	"direktori/internal/submit"
	"direktori/internal/testsupport"
	"direktori/internal/workflow"
)

func TestRunSuccessMarksDone(t *testing.T) {
	store := openStore(t)
	items := testsupport.SeedItems(t, store, "3171000001")
	backend := newScriptedBackend()

	summary, err := newManager(t, store, backend, testOptions(1)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := testsupport.MustGet(t, store, items[0].ID)
	if got.Status != queue.StatusDone || got.AttemptCount != 0 {
		t.Fatalf("expected done with 0 attempts, got %s/%d", got.Status, got.AttemptCount)
	}
	if got.Error != "" {
		t.Fatalf("expected no note on plain success, got %q", got.Error)
	}
	if got.AssignedTo != "test-pool:1" {
		t.Fatalf("unexpected assigned_to %q", got.AssignedTo)
	}
	if summary.Processed != 1 || summary.Completed != 1 || summary.ByStatus[queue.StatusDone] != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.RunID == "" || summary.Interrupted {
		t.Fatalf("unexpected run metadata %+v", summary)
	}
	if backend.closed.Load() != 1 {
		t.Fatalf("expected submitter closed once, got %d", backend.closed.Load())
	}
}

func TestRunInfraIssueReleasesAfterRetries(t *testing.T) {
	store := openStore(t)
	items := testsupport.SeedItems(t, store, "3171000002")
	backend := newScriptedBackend()
	backend.script("3171000002", submit.InfraIssue("navigation timeout of 120000 ms exceeded"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backend.hook = func(_ context.Context, _ *queue.WorkItem, call int) {
		if call == 2 {
			cancel()
		}
	}

	summary, err := newManager(t, store, backend, testOptions(1)).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := backend.callsFor("3171000002"); calls != 2 {
		t.Fatalf("expected 2 submit attempts, got %d", calls)
	}
	got := testsupport.MustGet(t, store, items[0].ID)
	if got.Status != queue.StatusNew || got.AttemptCount != 1 {
		t.Fatalf("expected new with 1 attempt, got %s/%d", got.Status, got.AttemptCount)
	}
	if got.Error != "retry_timeout:navigation timeout of 120000 ms exceeded" {
		t.Fatalf("unexpected note %q", got.Error)
	}
	if !summary.Interrupted || summary.Completed != 0 || summary.ByStatus[queue.StatusNew] != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	again, err := store.Claim(context.Background(), "other:1")
	if err != nil || again.ID != items[0].ID {
		t.Fatalf("released item should be claimable immediately: %v, %v", again, err)
	}
}

func TestRunLockedByOtherIsNeverReclaimed(t *testing.T) {
	store := openStore(t)
	items := testsupport.SeedItems(t, store, "3171000003")
	backend := newScriptedBackend()
	backend.script("3171000003", submit.LockedByOther())

	summary, err := newManager(t, store, backend, testOptions(2)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := testsupport.MustGet(t, store, items[0].ID)
	if got.Status != queue.StatusLocked || got.Error != queue.NoteLockedByOther || got.AttemptCount != 0 {
		t.Fatalf("unexpected item %+v", got)
	}
	if calls := backend.callsFor("3171000003"); calls != 1 {
		t.Fatalf("locked item submitted %d times", calls)
	}
	if summary.ByStatus[queue.StatusLocked] != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRunEmptyQueueTerminates(t *testing.T) {
	store := openStore(t)
	backend := newScriptedBackend()

	done := make(chan struct{})
	var (
		summary workflow.RunSummary
		err     error
	)
	go func() {
		defer close(done)
		summary, err = newManager(t, store, backend, testOptions(3)).Run(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return on empty queue")
	}
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 0 || summary.Workers != 3 || summary.Interrupted {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if backend.closed.Load() != 3 {
		t.Fatalf("expected 3 submitters closed, got %d", backend.closed.Load())
	}
}

func TestRunMixedOutcomesAcrossWorkers(t *testing.T) {
	store := openStore(t)
	backend := newScriptedBackend()
	type expectation struct {
		outcome submit.Outcome
		status  queue.Status
		note    string
		attempt int
	}
	cases := []expectation{
		{submit.Success(), queue.StatusDone, "", 0},
		{submit.AlreadySubmitted(), queue.StatusDone, queue.NoteAlreadySubmitted, 0},
		{submit.ApprovalInProgress(), queue.StatusDone, queue.NoteApprovalInProgress, 0},
		{submit.LockedByOther(), queue.StatusLocked, queue.NoteLockedByOther, 0},
		{submit.OtherError("select kbli: option 99999 not found"), queue.StatusFailed, "select kbli: option 99999 not found", 1},
	}
	var keys []string
	want := make(map[string]expectation)
	for i := 0; i < 15; i++ {
		key := fmt.Sprintf("31710%05d", i)
		exp := cases[i%len(cases)]
		backend.script(key, exp.outcome)
		keys = append(keys, key)
		want[key] = exp
	}
	testsupport.SeedItems(t, store, keys...)

	summary, err := newManager(t, store, backend, testOptions(3)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 15 {
		t.Fatalf("expected 15 processed, got %d", summary.Processed)
	}
	for _, key := range keys {
		item, err := store.GetByBusinessKey(context.Background(), key)
		if err != nil || item == nil {
			t.Fatalf("GetByBusinessKey(%s): %v", key, err)
		}
		exp := want[key]
		if item.Status != exp.status || item.Error != exp.note || item.AttemptCount != exp.attempt {
			t.Fatalf("%s: got %s/%q/%d want %s/%q/%d", key, item.Status, item.Error, item.AttemptCount, exp.status, exp.note, exp.attempt)
		}
		if calls := backend.callsFor(key); calls != 1 {
			t.Fatalf("%s submitted %d times", key, calls)
		}
		if !strings.HasPrefix(item.AssignedTo, "test-pool:") {
			t.Fatalf("%s: unexpected assigned_to %q", key, item.AssignedTo)
		}
	}
	if summary.ByOutcome[submit.KindOtherError.String()] != 3 || summary.ByStatus[queue.StatusDone] != 9 {
		t.Fatalf("unexpected summary counts %+v", summary)
	}
}

func TestRunRecoversSubmitterPanic(t *testing.T) {
	store := openStore(t)
	items := testsupport.SeedItems(t, store, "3171000004", "3171000005")
	factory := submit.FactoryFunc(func(context.Context, string) (submit.Submitter, error) {
		return submit.Func(func(_ context.Context, item *queue.WorkItem) submit.Outcome {
			if item.BusinessKey == "3171000004" {
				panic("nil form element")
			}
			return submit.Success()
		}), nil
	})

	summary, err := newManager(t, store, factory, testOptions(1)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	panicked := testsupport.MustGet(t, store, items[0].ID)
	if panicked.Status != queue.StatusFailed || !strings.Contains(panicked.Error, "nil form element") {
		t.Fatalf("expected failed item with panic text, got %+v", panicked)
	}
	if next := testsupport.MustGet(t, store, items[1].ID); next.Status != queue.StatusDone {
		t.Fatalf("worker should continue after a panic, got %s", next.Status)
	}
	if summary.Processed != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRunFinishesInFlightItemOnCancel(t *testing.T) {
	store := openStore(t)
	items := testsupport.SeedItems(t, store, "3171000006", "3171000007")
	started := make(chan struct{})
	release := make(chan struct{})
	factory := submit.FactoryFunc(func(context.Context, string) (submit.Submitter, error) {
		return submit.Func(func(ctx context.Context, item *queue.WorkItem) submit.Outcome {
			close(started)
			<-release
			if ctx.Err() != nil {
				return submit.InfraIssue(ctx.Err().Error())
			}
			return submit.Success()
		}), nil
	})
	opts := testOptions(1)
	opts.DrainTimeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan workflow.RunSummary, 1)
	go func() {
		summary, _ := newManager(t, store, factory, opts).Run(ctx)
		done <- summary
	}()

	<-started
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	var summary workflow.RunSummary
	select {
	case summary = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !summary.Interrupted || summary.Processed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := testsupport.MustGet(t, store, items[0].ID); got.Status != queue.StatusDone {
		t.Fatalf("in-flight item should finish as done, got %s", got.Status)
	}
	if got := testsupport.MustGet(t, store, items[1].ID); got.Status != queue.StatusNew {
		t.Fatalf("unclaimed item should stay new, got %s", got.Status)
	}
}

func TestRunDrainTimeoutCancelsSubmit(t *testing.T) {
	store := openStore(t)
	items := testsupport.SeedItems(t, store, "3171000008")
	started := make(chan struct{})
	factory := submit.FactoryFunc(func(context.Context, string) (submit.Submitter, error) {
		return submit.Func(func(ctx context.Context, item *queue.WorkItem) submit.Outcome {
			close(started)
			<-ctx.Done()
			return submit.InfraIssue("context canceled")
		}), nil
	})
	opts := testOptions(1)
	opts.Retry.MaxAttempts = 1
	opts.DrainTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = newManager(t, store, factory, opts).Run(ctx)
	}()
	<-started
	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("drain timeout did not stop the in-flight submit")
	}
	got := testsupport.MustGet(t, store, items[0].ID)
	if got.Status != queue.StatusNew || got.AttemptCount != 1 {
		t.Fatalf("expected item released after drain timeout, got %s/%d", got.Status, got.AttemptCount)
	}
}

func TestRunSurvivesClaimErrors(t *testing.T) {
	store := &flakyStore{Store: openStore(t)}
	store.claimFailures.Store(2)
	testsupport.SeedItems(t, store, "3171000009")

	mgr := newManager(t, store, newScriptedBackend(), testOptions(1))
	summary, err := mgr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ClaimErrors != 2 || summary.Processed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if status := mgr.Status(context.Background()); !strings.Contains(status.LastError, "connection reset") {
		t.Fatalf("expected last error recorded, got %q", status.LastError)
	}
}

func TestRunReconcileFailureLeavesItemInProgress(t *testing.T) {
	store := &flakyStore{Store: openStore(t)}
	store.failMarkDone.Store(true)
	items := testsupport.SeedItems(t, store, "3171000010")

	summary, err := newManager(t, store, newScriptedBackend(), testOptions(1)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ReconcileErrors != 1 || summary.Processed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := testsupport.MustGet(t, store, items[0].ID); got.Status != queue.StatusInProgress {
		t.Fatalf("expected item left in_progress, got %s", got.Status)
	}
}

func TestRunFailsWhenNoSubmitterStarts(t *testing.T) {
	store := openStore(t)
	testsupport.SeedItems(t, store, "3171000011")
	factory := submit.FactoryFunc(func(context.Context, string) (submit.Submitter, error) {
		return nil, errors.New("chrome not found")
	})

	summary, err := newManager(t, store, factory, testOptions(2)).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "chrome not found") {
		t.Fatalf("expected start error, got %v", err)
	}
	if summary.SubmitterErrors != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	items, _ := store.List(context.Background(), queue.ListFilter{Statuses: []queue.Status{queue.StatusNew}})
	if len(items) != 1 {
		t.Fatal("item must stay new when no worker ran")
	}
}

func TestRunHeartbeatKeepsClaimFresh(t *testing.T) {
	store := openStore(t)
	items := testsupport.SeedItems(t, store, "3171000012")
	var touched bool
	factory := submit.FactoryFunc(func(context.Context, string) (submit.Submitter, error) {
		return submit.Func(func(ctx context.Context, item *queue.WorkItem) submit.Outcome {
			time.Sleep(120 * time.Millisecond)
			current, err := store.GetByID(ctx, item.ID)
			if err == nil && current != nil && current.LastUpdated.After(item.LastUpdated) {
				touched = true
			}
			return submit.Success()
		}), nil
	})
	opts := testOptions(1)
	opts.HeartbeatInterval = 20 * time.Millisecond
	opts.StaleClaimTimeout = time.Hour

	if _, err := newManager(t, store, factory, opts).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !touched {
		t.Fatal("expected heartbeat to refresh last_updated while submitting")
	}
	if got := testsupport.MustGet(t, store, items[0].ID); got.Status != queue.StatusDone {
		t.Fatalf("unexpected status %s", got.Status)
	}
}

func TestStatusReportsWorkers(t *testing.T) {
	store := openStore(t)
	testsupport.SeedItems(t, store, "3171000013")
	mgr := newManager(t, store, newScriptedBackend(), testOptions(2))
	if _, err := mgr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	status := mgr.Status(context.Background())
	if status.Running {
		t.Fatal("expected pool stopped")
	}
	if len(status.Workers) != 2 || status.Workers[0].ID != "test-pool:1" || status.Workers[1].ID != "test-pool:2" {
		t.Fatalf("unexpected workers %+v", status.Workers)
	}
	for _, w := range status.Workers {
		if w.Phase != workflow.PhaseExited {
			t.Fatalf("worker %s phase %s", w.ID, w.Phase)
		}
	}
	if status.LastItem == nil || status.LastItem.BusinessKey != "3171000013" {
		t.Fatalf("unexpected last item %+v", status.LastItem)
	}
	if status.QueueStats[queue.StatusDone] != 1 {
		t.Fatalf("unexpected stats %v", status.QueueStats)
	}
}

func TestNewManagerRequiresDependencies(t *testing.T) {
	if _, err := workflow.NewManager(nil, newScriptedBackend(), logging.NewNop(), workflow.Options{}); err == nil {
		t.Fatal("expected error without store")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(4), testsupport.WithPoolName("pc-jaksel"), testsupport.WithStaleClaimTimeout(900))
	opts := workflow.OptionsFromConfig(cfg)
	if opts.Workers != 4 || opts.PoolName != "pc-jaksel" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.StaleClaimTimeout != 15*time.Minute || opts.Retry.MaxAttempts != 2 {
		t.Fatalf("unexpected durations %+v", opts)
	}
	if workflow.WorkerID("pc-jaksel", 3) != "pc-jaksel:3" {
		t.Fatalf("unexpected worker id %q", workflow.WorkerID("pc-jaksel", 3))
	}
}

func TestRunDrainCutsRetryKeepsRawInfraNote(t *testing.T) {
	store := openStore(t)
	items := testsupport.SeedItems(t, store, "3171000009")
	backend := newScriptedBackend()
	backend.script("3171000009", submit.InfraIssue("net::ERR_CONNECTION_RESET"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backend.hook = func(context.Context, *queue.WorkItem, int) { cancel() }

	opts := testOptions(1)
	opts.Retry.Delay = time.Minute
	opts.DrainTimeout = 20 * time.Millisecond
	start := time.Now()
	if _, err := newManager(t, store, backend, opts).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("drain deadline did not stop the retry wait")
	}
	if calls := backend.callsFor("3171000009"); calls != 1 {
		t.Fatalf("expected the retry to be cut short, got %d submits", calls)
	}
	got := testsupport.MustGet(t, store, items[0].ID)
	if got.Status != queue.StatusNew || got.AttemptCount != 1 {
		t.Fatalf("expected release to new, got %s/%d", got.Status, got.AttemptCount)
	}
	if got.Error != "net::ERR_CONNECTION_RESET" {
		t.Fatalf("expected raw infra detail, got %q", got.Error)
	}
}
