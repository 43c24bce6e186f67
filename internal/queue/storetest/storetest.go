// Package storetest is a conformance suite for queue.Store implementations.
// Backend tests call Run with a factory that returns an empty store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"direktori/internal/queue"
)

// Factory returns a store with an empty direktori_ids table. The suite closes
// nothing; factories register their own cleanup.
type Factory func(t *testing.T) queue.Store

// Run executes every conformance case as a subtest.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(*testing.T, queue.Store)
	}{
		{"ClaimEmptyQueue", testClaimEmptyQueue},
		{"ClaimSetsClaimFields", testClaimSetsClaimFields},
		{"ClaimPrefersFewerAttempts", testClaimPrefersFewerAttempts},
		{"ClaimTieBreaksByID", testClaimTieBreaksByID},
		{"ConcurrentClaimsAreExclusive", testConcurrentClaimsAreExclusive},
		{"CancelledClaimLeavesItemNew", testCancelledClaimLeavesItemNew},
		{"FirstTakenAtImmutable", testFirstTakenAtImmutable},
		{"AttemptCountMonotonic", testAttemptCountMonotonic},
		{"MarkDoneIdempotent", testMarkDoneIdempotent},
		{"MarkDoneWithoutNoteKeepsError", testMarkDoneWithoutNoteKeepsError},
		{"LockedNeverReclaimed", testLockedNeverReclaimed},
		{"ErrorTextTruncated", testErrorTextTruncated},
		{"ReconcileUnknownID", testReconcileUnknownID},
		{"InsertRejectsDuplicates", testInsertRejectsDuplicates},
		{"InsertKeepsPayload", testInsertKeepsPayload},
		{"ResetToNew", testResetToNew},
		{"SetStatus", testSetStatus},
		{"TouchOnlyInProgress", testTouchOnlyInProgress},
		{"ReclaimStale", testReclaimStale},
		{"ListAndStats", testListAndStats},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func seed(t *testing.T, store queue.Store, keys ...string) []*queue.WorkItem {
	t.Helper()
	items := make([]*queue.WorkItem, 0, len(keys))
	for _, key := range keys {
		item, err := store.Insert(context.Background(), key, queue.Payload{Name: "Usaha " + key})
		if err != nil {
			t.Fatalf("Insert(%s): %v", key, err)
		}
		items = append(items, item)
	}
	return items
}

func mustClaim(t *testing.T, store queue.Store, worker string) *queue.WorkItem {
	t.Helper()
	item, err := store.Claim(context.Background(), worker)
	if err != nil {
		t.Fatalf("Claim(%s): %v", worker, err)
	}
	return item
}

func mustGet(t *testing.T, store queue.Store, id int64) *queue.WorkItem {
	t.Helper()
	item, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d): %v", id, err)
	}
	if item == nil {
		t.Fatalf("item %d not found", id)
	}
	return item
}

func testClaimEmptyQueue(t *testing.T, store queue.Store) {
	if _, err := store.Claim(context.Background(), "pool:1"); !errors.Is(err, queue.ErrNoWork) {
		t.Fatalf("expected ErrNoWork on empty queue, got %v", err)
	}
	items := seed(t, store, "K-001")
	if err := store.MarkDone(context.Background(), items[0].ID, ""); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if _, err := store.Claim(context.Background(), "pool:1"); !errors.Is(err, queue.ErrNoWork) {
		t.Fatalf("expected ErrNoWork with only done items, got %v", err)
	}
}

func testClaimSetsClaimFields(t *testing.T, store queue.Store) {
	seeded := seed(t, store, "K-001")
	if seeded[0].Status != queue.StatusNew || seeded[0].FirstTakenAt != nil {
		t.Fatalf("unexpected inserted item: %+v", seeded[0])
	}
	item := mustClaim(t, store, "pc-01:1")
	if item.ID != seeded[0].ID {
		t.Fatalf("claimed id %d, want %d", item.ID, seeded[0].ID)
	}
	if item.Status != queue.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", item.Status)
	}
	if item.AssignedTo != "pc-01:1" {
		t.Fatalf("expected assigned_to pc-01:1, got %q", item.AssignedTo)
	}
	if item.FirstTakenAt == nil {
		t.Fatal("expected first_taken_at to be set")
	}
	if item.AttemptCount != 0 {
		t.Fatalf("claim must not count an attempt, got %d", item.AttemptCount)
	}
	if item.Payload.Name != "Usaha K-001" {
		t.Fatalf("expected payload returned with claim, got %+v", item.Payload)
	}
	stored := mustGet(t, store, item.ID)
	if stored.Status != queue.StatusInProgress || stored.AssignedTo != "pc-01:1" {
		t.Fatalf("claim not persisted: %+v", stored)
	}
}

func testClaimPrefersFewerAttempts(t *testing.T, store queue.Store) {
	ctx := context.Background()
	items := seed(t, store, "K-B", "K-A")
	b, a := items[0], items[1]

	first := mustClaim(t, store, "pool:1")
	if first.ID != b.ID {
		t.Fatalf("expected lowest id first, got %d", first.ID)
	}
	if err := store.ReleaseToNew(ctx, b.ID, "retry_timeout:net"); err != nil {
		t.Fatalf("ReleaseToNew: %v", err)
	}

	next := mustClaim(t, store, "pool:1")
	if next.ID != a.ID {
		t.Fatalf("expected item with fewer attempts (%d) before lower id, got %d", a.ID, next.ID)
	}
	again := mustClaim(t, store, "pool:1")
	if again.ID != b.ID || again.AttemptCount != 1 {
		t.Fatalf("expected released item next with attempt 1, got %+v", again)
	}
}

func testClaimTieBreaksByID(t *testing.T, store queue.Store) {
	items := seed(t, store, "K-1", "K-2", "K-3")
	for i, want := range items {
		got := mustClaim(t, store, "pool:1")
		if got.ID != want.ID {
			t.Fatalf("claim %d returned id %d, want %d", i, got.ID, want.ID)
		}
	}
}

func testConcurrentClaimsAreExclusive(t *testing.T, store queue.Store) {
	const (
		itemCount = 24
		workers   = 6
	)
	keys := make([]string, itemCount)
	for i := range keys {
		keys[i] = fmt.Sprintf("K-%03d", i)
	}
	seed(t, store, keys...)

	var (
		mu      sync.Mutex
		claimed = make(map[int64]string)
		errs    []error
		wg      sync.WaitGroup
	)
	for w := 1; w <= workers; w++ {
		worker := fmt.Sprintf("pool:%d", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := store.Claim(context.Background(), worker)
				if errors.Is(err, queue.ErrNoWork) {
					return
				}
				mu.Lock()
				if err != nil {
					errs = append(errs, err)
					mu.Unlock()
					return
				}
				if prev, dup := claimed[item.ID]; dup {
					errs = append(errs, fmt.Errorf("item %d claimed by %s and %s", item.ID, prev, worker))
				}
				claimed[item.ID] = worker
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("concurrent claims failed: %v", errs)
	}
	if len(claimed) != itemCount {
		t.Fatalf("expected %d distinct claims, got %d", itemCount, len(claimed))
	}
	for id, worker := range claimed {
		item := mustGet(t, store, id)
		if item.Status != queue.StatusInProgress || item.AssignedTo != worker {
			t.Fatalf("item %d: status=%s assigned_to=%q want in_progress/%s", id, item.Status, item.AssignedTo, worker)
		}
	}
}

func testCancelledClaimLeavesItemNew(t *testing.T, store queue.Store) {
	items := seed(t, store, "K-001")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Claim(ctx, "pool:1"); err == nil || errors.Is(err, queue.ErrNoWork) {
		t.Fatalf("expected claim to fail on a cancelled context, got %v", err)
	}
	got := mustGet(t, store, items[0].ID)
	if got.Status != queue.StatusNew || got.AssignedTo != "" || got.FirstTakenAt != nil {
		t.Fatalf("failed claim changed the item: %+v", got)
	}
	if again := mustClaim(t, store, "pool:1"); again.ID != items[0].ID {
		t.Fatalf("expected item claimable after failed claim, got %d", again.ID)
	}
}

func testFirstTakenAtImmutable(t *testing.T, store queue.Store) {
	ctx := context.Background()
	seed(t, store, "K-001")
	first := mustClaim(t, store, "pool:1")
	if first.FirstTakenAt == nil {
		t.Fatal("expected first_taken_at after claim")
	}
	taken := *first.FirstTakenAt

	time.Sleep(20 * time.Millisecond)
	if err := store.ReleaseToNew(ctx, first.ID, "retry_timeout:dns"); err != nil {
		t.Fatalf("ReleaseToNew: %v", err)
	}
	second := mustClaim(t, store, "pool:2")
	if second.ID != first.ID {
		t.Fatalf("expected same item reclaimed, got %d", second.ID)
	}
	if second.FirstTakenAt == nil || !second.FirstTakenAt.Equal(taken) {
		t.Fatalf("first_taken_at changed: was %v now %v", taken, second.FirstTakenAt)
	}
	if second.AssignedTo != "pool:2" {
		t.Fatalf("expected assigned_to to follow latest claimant, got %q", second.AssignedTo)
	}
	if !second.LastUpdated.After(taken) {
		t.Fatalf("expected last_updated %v after first claim %v", second.LastUpdated, taken)
	}
}

func testAttemptCountMonotonic(t *testing.T, store queue.Store) {
	ctx := context.Background()
	seed(t, store, "K-001")
	item := mustClaim(t, store, "pool:1")

	steps := []struct {
		name string
		do   func(id int64) error
		want int
	}{
		{"release", func(id int64) error { return store.ReleaseToNew(ctx, id, "retry_timeout:a") }, 1},
		{"fail", func(id int64) error { return store.MarkFailed(ctx, id, "selector not found") }, 2},
		{"locked", func(id int64) error { return store.MarkLocked(ctx, id, "") }, 2},
		{"done", func(id int64) error { return store.MarkDone(ctx, id, "") }, 2},
		{"release again", func(id int64) error { return store.ReleaseToNew(ctx, id, "retry_timeout:b") }, 3},
	}
	last := item.AttemptCount
	for _, step := range steps {
		if err := step.do(item.ID); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		got := mustGet(t, store, item.ID).AttemptCount
		if got < last {
			t.Fatalf("%s: attempt_count decreased from %d to %d", step.name, last, got)
		}
		if got != step.want {
			t.Fatalf("%s: attempt_count=%d want %d", step.name, got, step.want)
		}
		last = got
	}
}

func testMarkDoneIdempotent(t *testing.T, store queue.Store) {
	ctx := context.Background()
	seed(t, store, "K-001")
	item := mustClaim(t, store, "pool:1")
	if err := store.MarkDone(ctx, item.ID, ""); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	before := mustGet(t, store, item.ID)

	if err := store.MarkDone(ctx, item.ID, queue.NoteApprovalInProgress); err != nil {
		t.Fatalf("second MarkDone: %v", err)
	}
	after := mustGet(t, store, item.ID)
	if after.Status != queue.StatusDone {
		t.Fatalf("expected done, got %s", after.Status)
	}
	if after.AttemptCount != before.AttemptCount {
		t.Fatalf("attempt_count changed: %d -> %d", before.AttemptCount, after.AttemptCount)
	}
	if after.Error != queue.NoteApprovalInProgress {
		t.Fatalf("expected note stored, got %q", after.Error)
	}
	if after.AssignedTo != before.AssignedTo {
		t.Fatalf("assigned_to changed: %q -> %q", before.AssignedTo, after.AssignedTo)
	}
	if !equalTimes(after.FirstTakenAt, before.FirstTakenAt) {
		t.Fatalf("first_taken_at changed: %v -> %v", before.FirstTakenAt, after.FirstTakenAt)
	}
}

func testMarkDoneWithoutNoteKeepsError(t *testing.T, store queue.Store) {
	ctx := context.Background()
	seed(t, store, "K-001")
	item := mustClaim(t, store, "pool:1")
	if err := store.ReleaseToNew(ctx, item.ID, "retry_timeout:reset by peer"); err != nil {
		t.Fatalf("ReleaseToNew: %v", err)
	}
	item = mustClaim(t, store, "pool:1")
	if err := store.MarkDone(ctx, item.ID, ""); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	got := mustGet(t, store, item.ID)
	if got.Status != queue.StatusDone || got.AttemptCount != 1 {
		t.Fatalf("unexpected item: status=%s attempts=%d", got.Status, got.AttemptCount)
	}
	if got.Error != "retry_timeout:reset by peer" {
		t.Fatalf("expected previous error kept, got %q", got.Error)
	}
}

func testLockedNeverReclaimed(t *testing.T, store queue.Store) {
	ctx := context.Background()
	seed(t, store, "K-001")
	item := mustClaim(t, store, "pool:1")
	if err := store.MarkLocked(ctx, item.ID, ""); err != nil {
		t.Fatalf("MarkLocked: %v", err)
	}
	got := mustGet(t, store, item.ID)
	if got.Status != queue.StatusLocked || got.Error != queue.NoteLockedByOther || got.AttemptCount != 0 {
		t.Fatalf("unexpected locked item: %+v", got)
	}
	if _, err := store.Claim(ctx, "pool:2"); !errors.Is(err, queue.ErrNoWork) {
		t.Fatalf("locked item must not be claimable, got %v", err)
	}
}

func testErrorTextTruncated(t *testing.T, store queue.Store) {
	ctx := context.Background()
	seed(t, store, "K-001")
	item := mustClaim(t, store, "pool:1")
	long := strings.Repeat("galat ", 400)
	if err := store.MarkFailed(ctx, item.ID, long); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got := mustGet(t, store, item.ID)
	if n := utf8.RuneCountInString(got.Error); n != queue.MaxErrorLength {
		t.Fatalf("expected error truncated to %d chars, got %d", queue.MaxErrorLength, n)
	}
	if got.Status != queue.StatusFailed || got.AttemptCount != 1 {
		t.Fatalf("unexpected failed item: status=%s attempts=%d", got.Status, got.AttemptCount)
	}
}

func testReconcileUnknownID(t *testing.T, store queue.Store) {
	ctx := context.Background()
	const missing = int64(987654)
	ops := map[string]func() error{
		"MarkDone":     func() error { return store.MarkDone(ctx, missing, "") },
		"MarkFailed":   func() error { return store.MarkFailed(ctx, missing, "x") },
		"MarkLocked":   func() error { return store.MarkLocked(ctx, missing, "") },
		"ReleaseToNew": func() error { return store.ReleaseToNew(ctx, missing, "x") },
		"SetStatus":    func() error { return store.SetStatus(ctx, missing, queue.StatusNew) },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, queue.ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
	item, err := store.GetByID(ctx, missing)
	if err != nil || item != nil {
		t.Fatalf("GetByID(missing) = %v, %v; want nil, nil", item, err)
	}
}

func testInsertRejectsDuplicates(t *testing.T, store queue.Store) {
	ctx := context.Background()
	seed(t, store, "3171000123")
	if _, err := store.Insert(ctx, " 3171000123 ", queue.Payload{}); !errors.Is(err, queue.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.Insert(ctx, "   ", queue.Payload{}); !errors.Is(err, queue.ErrEmptyBusinessKey) {
		t.Fatalf("expected ErrEmptyBusinessKey, got %v", err)
	}
}

func testInsertKeepsPayload(t *testing.T, store queue.Store) {
	ctx := context.Background()
	payload := queue.Payload{
		Name:         "Warung Makan Sederhana",
		Address:      "Jl. Merdeka No. 1",
		Latitude:     "-6.175392",
		Longitude:    "106.827153",
		ProvinceCode: "31",
		KBLI:         "56101",
	}
	inserted, err := store.Insert(ctx, "3171000999", payload)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := store.GetByBusinessKey(ctx, "3171000999")
	if err != nil || got == nil {
		t.Fatalf("GetByBusinessKey: %v, %v", got, err)
	}
	if got.ID != inserted.ID || got.Payload != payload {
		t.Fatalf("payload mismatch: got %+v want %+v", got.Payload, payload)
	}
	missing, err := store.GetByBusinessKey(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("GetByBusinessKey(missing) = %v, %v", missing, err)
	}
}

func testResetToNew(t *testing.T, store queue.Store) {
	ctx := context.Background()
	items := seed(t, store, "K-1", "K-2", "K-3")
	for range items {
		mustClaim(t, store, "pool:1")
	}
	if err := store.MarkFailed(ctx, items[0].ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := store.MarkLocked(ctx, items[1].ID, ""); err != nil {
		t.Fatalf("MarkLocked: %v", err)
	}
	if err := store.MarkDone(ctx, items[2].ID, ""); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	n, err := store.ResetToNew(ctx, []string{"K-1", " K-2", "K-1", "unknown", ""})
	if err != nil {
		t.Fatalf("ResetToNew: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows reset, got %d", n)
	}
	first := mustGet(t, store, items[0].ID)
	if first.Status != queue.StatusNew || first.AttemptCount != 1 {
		t.Fatalf("reset must not touch attempt_count: %+v", first)
	}
	if mustGet(t, store, items[1].ID).Status != queue.StatusNew {
		t.Fatal("expected locked item reset to new")
	}
	if mustGet(t, store, items[2].ID).Status != queue.StatusDone {
		t.Fatal("unlisted item must keep its status")
	}
	if n, err := store.ResetToNew(ctx, nil); err != nil || n != 0 {
		t.Fatalf("ResetToNew(nil) = %d, %v", n, err)
	}
}

func testSetStatus(t *testing.T, store queue.Store) {
	ctx := context.Background()
	items := seed(t, store, "K-1")
	if err := store.SetStatus(ctx, items[0].ID, queue.StatusFailed); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got := mustGet(t, store, items[0].ID)
	if got.Status != queue.StatusFailed || got.AttemptCount != 0 {
		t.Fatalf("SetStatus must only change status: %+v", got)
	}
	if err := store.SetStatus(ctx, items[0].ID, queue.Status("pending")); !errors.Is(err, queue.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func testTouchOnlyInProgress(t *testing.T, store queue.Store) {
	ctx := context.Background()
	items := seed(t, store, "K-1")
	if err := store.Touch(ctx, items[0].ID); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Touch on new item: expected ErrNotFound, got %v", err)
	}
	claimed := mustClaim(t, store, "pool:1")
	time.Sleep(10 * time.Millisecond)
	if err := store.Touch(ctx, claimed.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	got := mustGet(t, store, claimed.ID)
	if !got.LastUpdated.After(claimed.LastUpdated) {
		t.Fatalf("expected last_updated to advance: %v -> %v", claimed.LastUpdated, got.LastUpdated)
	}
	if got.Status != queue.StatusInProgress {
		t.Fatalf("Touch changed status to %s", got.Status)
	}
}

func testReclaimStale(t *testing.T, store queue.Store) {
	ctx := context.Background()
	seed(t, store, "K-1", "K-2", "K-3")
	a := mustClaim(t, store, "pool:1")
	b := mustClaim(t, store, "pool:2")

	n, err := store.ReclaimStale(ctx, time.Hour, "")
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if n != 0 {
		t.Fatalf("fresh claims must not be reclaimed, got %d", n)
	}

	time.Sleep(50 * time.Millisecond)
	n, err = store.ReclaimStale(ctx, 20*time.Millisecond, "")
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 stale claims reclaimed, got %d", n)
	}
	for _, id := range []int64{a.ID, b.ID} {
		got := mustGet(t, store, id)
		if got.Status != queue.StatusNew || got.AttemptCount != 1 || got.Error != queue.NoteStaleClaim {
			t.Fatalf("unexpected reclaimed item: %+v", got)
		}
	}
}

func testListAndStats(t *testing.T, store queue.Store) {
	ctx := context.Background()
	seed(t, store, "K-1", "K-2", "K-3", "K-4")
	first := mustClaim(t, store, "pool:1")
	second := mustClaim(t, store, "pool:2")
	if err := store.MarkDone(ctx, first.ID, ""); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := map[queue.Status]int{queue.StatusNew: 2, queue.StatusInProgress: 1, queue.StatusDone: 1}
	for status, count := range want {
		if stats[status] != count {
			t.Fatalf("stats[%s]=%d want %d (all: %v)", status, stats[status], count, stats)
		}
	}

	newItems, err := store.List(ctx, queue.ListFilter{Statuses: []queue.Status{queue.StatusNew}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	ids := make([]int64, 0, len(newItems))
	for _, item := range newItems {
		ids = append(ids, item.ID)
	}
	if len(ids) != 2 || !sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }) {
		t.Fatalf("expected 2 new items ordered by id, got %v", ids)
	}

	mine, err := store.List(ctx, queue.ListFilter{AssignedTo: "pool:2"})
	if err != nil {
		t.Fatalf("List assigned: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != second.ID {
		t.Fatalf("expected only pool:2 item, got %d items", len(mine))
	}

	limited, err := store.List(ctx, queue.ListFilter{Limit: 3})
	if err != nil {
		t.Fatalf("List limit: %v", err)
	}
	if len(limited) != 3 {
		t.Fatalf("expected limit 3, got %d", len(limited))
	}
}

func equalTimes(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
