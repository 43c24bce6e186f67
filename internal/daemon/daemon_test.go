package daemon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"direktori/internal/daemon"
	"direktori/internal/logging"
	"direktori/internal/queue"
	"direktori/internal/submit"
	"direktori/internal/testsupport"
	"direktori/internal/workflow"
)

func successFactory() submit.Factory {
	return submit.FactoryFunc(func(context.Context, string) (submit.Submitter, error) {
		return submit.Func(func(context.Context, *queue.WorkItem) submit.Outcome {
			return submit.Success()
		}), nil
	})
}

func newDaemon(t *testing.T) (*daemon.Daemon, queue.Store, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2))
	store := testsupport.MustOpenStore(t, cfg)
	mgr, err := workflow.NewManager(store, successFactory(), logging.NewNop(), workflow.OptionsFromConfig(cfg))
	if err != nil {
		t.Fatalf("workflow.NewManager: %v", err)
	}
	d, err := daemon.New(cfg, store, logging.NewNop(), mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, store, cfg.LockPath()
}

func TestDaemonRunDrainsQueue(t *testing.T) {
	d, store, _ := newDaemon(t)
	items := testsupport.SeedItems(t, store, "3171000001", "3171000002", "3171000003")

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Processed != len(items) {
		t.Fatalf("expected %d processed, got %d", len(items), summary.Processed)
	}
	for _, item := range items {
		if got := testsupport.MustGet(t, store, item.ID); got.Status != queue.StatusDone {
			t.Fatalf("item %s status = %s, want done", item.BusinessKey, got.Status)
		}
	}
	status := d.Status(context.Background())
	if status.Running {
		t.Fatal("expected daemon to report stopped after Run")
	}
	if status.PoolName != "test-pool" || status.Workflow.QueueStats[queue.StatusDone] != len(items) {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Conns != nil {
		t.Fatalf("sqlite store has no connection pool, got %+v", status.Conns)
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	d, _, lockPath := newDaemon(t)

	other := flock.New(lockPath)
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("pre-acquire lock: ok=%v err=%v", ok, err)
	}
	defer other.Unlock()

	if _, err := d.Run(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestDaemonReleasesLockAfterRun(t *testing.T) {
	d, _, lockPath := newDaemon(t)
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	other := flock.New(lockPath)
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("expected lock to be free after Run: ok=%v err=%v", ok, err)
	}
	_ = other.Unlock()
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := daemon.New(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

// pooledStore reports a fully checked-out connection pool.
type pooledStore struct {
	queue.Store
}

func (pooledStore) PoolStats() (total, idle, max int32) { return 4, 0, 4 }

func TestDaemonLogsProgressWhileRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := pooledStore{Store: testsupport.MustOpenStore(t, cfg)}
	testsupport.SeedItems(t, store, "3171000010")

	slow := submit.FactoryFunc(func(context.Context, string) (submit.Submitter, error) {
		return submit.Func(func(context.Context, *queue.WorkItem) submit.Outcome {
			time.Sleep(200 * time.Millisecond)
			return submit.Success()
		}), nil
	})
	logPath := filepath.Join(t.TempDir(), "daemon.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	mgr, err := workflow.NewManager(store, slow, logger, workflow.OptionsFromConfig(cfg))
	if err != nil {
		t.Fatalf("workflow.NewManager: %v", err)
	}
	d, err := daemon.New(cfg, store, logger, mgr, daemon.WithProgressInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	log := string(content)
	for _, want := range []string{`"event_type":"db_pool_saturated"`, `"db_conns_max":4`, `"submitting":1`, `"queue_in_progress":1`} {
		if !strings.Contains(log, want) {
			t.Fatalf("expected %s in progress log:\n%s", want, log)
		}
	}

	status := d.Status(context.Background())
	if status.Conns == nil || !status.Conns.Saturated() {
		t.Fatalf("expected saturated conn stats, got %+v", status.Conns)
	}
}

func TestProgressDisabledByZeroInterval(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.ProgressInterval = 0
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedItems(t, store, "3171000011")

	logPath := filepath.Join(t.TempDir(), "daemon.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	mgr, err := workflow.NewManager(store, successFactory(), logger, workflow.OptionsFromConfig(cfg))
	if err != nil {
		t.Fatalf("workflow.NewManager: %v", err)
	}
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(content), "pool_progress") {
		t.Fatalf("expected no progress lines, got %s", content)
	}
}
