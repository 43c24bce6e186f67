package sqlitestore_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"direktori/internal/queue"
	"direktori/internal/queue/sqlitestore"
	"direktori/internal/queue/storetest"
)

func openStore(t *testing.T, opts ...sqlitestore.Option) *sqlitestore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := sqlitestore.Open(context.Background(), path, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) queue.Store {
		return openStore(t)
	})
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "queue.db")
	first, err := sqlitestore.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := first.Insert(context.Background(), "3171000123", queue.Payload{}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := sqlitestore.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	item, err := second.GetByBusinessKey(context.Background(), "3171000123")
	if err != nil || item == nil {
		t.Fatalf("expected item to survive reopen: %v, %v", item, err)
	}
	if second.Path() != path {
		t.Fatalf("unexpected path %q", second.Path())
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := sqlitestore.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := sqlitestore.Open(context.Background(), path); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestReclaimStaleUsesStoredHeartbeat(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := openStore(t, sqlitestore.WithClock(clock))
	ctx := context.Background()

	if _, err := store.Insert(ctx, "K-1", queue.Payload{}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := store.Insert(ctx, "K-2", queue.Payload{}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	stale, err := store.Claim(ctx, "pool:1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	now = now.Add(10 * time.Minute)
	live, err := store.Claim(ctx, "pool:2")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	now = now.Add(10 * time.Minute)
	if err := store.Touch(ctx, live.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	n, err := store.ReclaimStale(ctx, 15*time.Minute, "")
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", n)
	}
	got, _ := store.GetByID(ctx, stale.ID)
	if got.Status != queue.StatusNew || !got.LastUpdated.Equal(now) {
		t.Fatalf("unexpected reclaimed item: %+v", got)
	}
	if !got.FirstTakenAt.Equal(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("first_taken_at changed to %v", got.FirstTakenAt)
	}
	kept, _ := store.GetByID(ctx, live.ID)
	if kept.Status != queue.StatusInProgress {
		t.Fatalf("touched claim must stay in_progress, got %s", kept.Status)
	}
}

func TestResetToNewHandlesLargeKeyLists(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	keys := make([]string, 0, 1200)
	for i := 0; i < 1200; i++ {
		key := "K-" + strconv.Itoa(i)
		keys = append(keys, key)
		item, err := store.Insert(ctx, key, queue.Payload{})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := store.SetStatus(ctx, item.ID, queue.StatusFailed); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}
	}
	n, err := store.ResetToNew(ctx, keys)
	if err != nil {
		t.Fatalf("ResetToNew: %v", err)
	}
	if n != 1200 {
		t.Fatalf("expected 1200 reset, got %d", n)
	}
}

func TestClaimFailureRollsBackToNew(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := sqlitestore.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	seeded, err := store.Insert(ctx, "K-1", queue.Payload{})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw handle: %v", err)
	}
	defer raw.Close()
	// FAIL keeps the row change made by the statement, so only the
	// transaction rollback can restore it.
	if _, err := raw.ExecContext(ctx, `CREATE TRIGGER reject_claim AFTER UPDATE OF automation_status ON direktori_ids
        WHEN NEW.automation_status = 'in_progress'
        BEGIN SELECT RAISE(FAIL, 'claim rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	_, err = store.Claim(ctx, "pool:1")
	if err == nil || errors.Is(err, queue.ErrNoWork) {
		t.Fatalf("expected claim failure, got %v", err)
	}
	got, err := store.GetByID(ctx, seeded.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v, %v", got, err)
	}
	if got.Status != queue.StatusNew || got.AssignedTo != "" || got.FirstTakenAt != nil || got.AttemptCount != 0 {
		t.Fatalf("failed claim left changes behind: %+v", got)
	}

	if _, err := raw.ExecContext(ctx, `DROP TRIGGER reject_claim`); err != nil {
		t.Fatalf("drop trigger: %v", err)
	}
	claimed, err := store.Claim(ctx, "pool:1")
	if err != nil || claimed.ID != seeded.ID {
		t.Fatalf("expected item claimable after failure: %v, %v", claimed, err)
	}
}
