package testsupport

import (
	"context"
	"testing"

	"direktori/internal/config"
	"direktori/internal/queue"
	"direktori/internal/queue/sqlitestore"
)

// MustOpenStore opens the sqlite queue named by cfg and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *sqlitestore.Store {
	t.Helper()

	store, err := sqlitestore.Open(context.Background(), cfg.Database.SQLitePath)
	if err != nil {
		t.Fatalf("sqlitestore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedItems inserts one new item per business key.
func SeedItems(t testing.TB, store queue.Store, keys ...string) []*queue.WorkItem {
	t.Helper()

	items := make([]*queue.WorkItem, 0, len(keys))
	for _, key := range keys {
		item, err := store.Insert(context.Background(), key, queue.Payload{Name: "Usaha " + key})
		if err != nil {
			t.Fatalf("store.Insert(%s): %v", key, err)
		}
		items = append(items, item)
	}
	return items
}

// MustGet loads an item that must exist.
func MustGet(t testing.TB, store queue.Store, id int64) *queue.WorkItem {
	t.Helper()

	item, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("store.GetByID(%d): %v", id, err)
	}
	if item == nil {
		t.Fatalf("item %d not found", id)
	}
	return item
}
