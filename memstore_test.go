package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreEnqueueUpserts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := Record{ID: "a", Message: "first", CreatedAt: time.Now()}
	if err := store.Enqueue(ctx, record); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record.Message = "second"
	if err := store.Enqueue(ctx, record); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}

	records, _ := store.PendingErrors(ctx)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Message != "second" {
		t.Fatalf("expected upsert, got %q", records[0].Message)
	}
}

func TestMemoryStoreDequeueMissingID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Dequeue(ctx, "ghost"); err != nil {
		t.Fatalf("dequeue missing id: %v", err)
	}
	if err := store.DequeueBatch(ctx, []string{"ghost", "phantom"}); err != nil {
		t.Fatalf("dequeue batch of missing ids: %v", err)
	}
}

func TestMemoryStoreIncrementRetry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Enqueue(ctx, Record{ID: "a", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for want := 1; want <= 3; want++ {
		count, found, err := store.IncrementRetry(ctx, "a")
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if !found || count != want {
			t.Fatalf("expected count %d found, got %d %v", want, count, found)
		}
	}

	if _, found, err := store.IncrementRetry(ctx, "ghost"); err != nil || found {
		t.Fatalf("expected missing id to be a no-op, got found=%v err=%v", found, err)
	}
}

func TestMemoryStoreDeleteStale(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.clock = clock
	ctx := context.Background()

	old := clock.Now().Add(-25 * time.Hour)
	fresh := clock.Now().Add(-time.Hour)
	store.Enqueue(ctx, Record{ID: "old-1", CreatedAt: old})
	store.Enqueue(ctx, Record{ID: "old-2", CreatedAt: old})
	store.Enqueue(ctx, Record{ID: "fresh", CreatedAt: fresh})

	deleted, err := store.DeleteStale(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("delete stale: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	if size, _ := store.QueueSize(ctx); size != 1 {
		t.Fatalf("expected 1 left, got %d", size)
	}
}

func TestMemoryStoreClear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Enqueue(ctx, Record{ID: "a", CreatedAt: time.Now()})
	store.Enqueue(ctx, Record{ID: "b", CreatedAt: time.Now()})
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if size, _ := store.QueueSize(ctx); size != 0 {
		t.Fatalf("expected empty store, got %d", size)
	}
}
