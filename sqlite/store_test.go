package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	telemetry "github.com/Whagons-International/whagons5-telemetry"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := NewStore(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Init(context.Background()))
	return store
}

func sampleRecord(id string, createdAt time.Time) telemetry.Record {
	return telemetry.Record{
		ID:        id,
		Timestamp: createdAt,
		CreatedAt: createdAt,
		Category:  telemetry.CategoryNetwork,
		Message:   "request failed: status 500",
		Stack:     "at fetchTasks",
		Context: &telemetry.ErrorContext{
			AppVersion: "5.2.1",
			Tenant:     "acme",
			Extra:      map[string]any{"endpoint": "/api/tasks"},
		},
	}
}

func TestStoreRequiresPath(t *testing.T) {
	_, err := NewStore("")
	require.ErrorIs(t, err, ErrPathRequired)
}

func TestStoreEnqueueRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Enqueue(ctx, sampleRecord("a", now)))

	records, err := store.PendingErrors(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	require.Equal(t, "a", got.ID)
	require.True(t, got.CreatedAt.Equal(now))
	require.Equal(t, telemetry.CategoryNetwork, got.Category)
	require.Equal(t, "request failed: status 500", got.Message)
	require.Equal(t, "at fetchTasks", got.Stack)
	require.NotNil(t, got.Context)
	require.Equal(t, "5.2.1", got.Context.AppVersion)
	require.Equal(t, "/api/tasks", got.Context.Extra["endpoint"])
	require.Zero(t, got.RetryCount)
}

func TestStoreEnqueueUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := sampleRecord("a", time.Now())
	require.NoError(t, store.Enqueue(ctx, record))
	record.Message = "rewritten"
	record.RetryCount = 2
	require.NoError(t, store.Enqueue(ctx, record))

	records, err := store.PendingErrors(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "rewritten", records[0].Message)
	require.Equal(t, 2, records[0].RetryCount)
}

func TestStoreNilContextColumn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := sampleRecord("a", time.Now())
	record.Context = nil
	require.NoError(t, store.Enqueue(ctx, record))

	records, err := store.PendingErrors(ctx)
	require.NoError(t, err)
	require.Nil(t, records[0].Context)
}

func TestStorePendingErrorsOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Enqueue(ctx, sampleRecord("newer", base.Add(time.Minute))))
	require.NoError(t, store.Enqueue(ctx, sampleRecord("older", base)))

	records, err := store.PendingErrors(ctx)
	require.NoError(t, err)
	require.Equal(t, "older", records[0].ID)
	require.Equal(t, "newer", records[1].ID)
}

func TestStoreDequeue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Enqueue(ctx, sampleRecord("a", time.Now())))
	require.NoError(t, store.Dequeue(ctx, "a"))
	require.NoError(t, store.Dequeue(ctx, "a")) // already gone

	size, err := store.QueueSize(ctx)
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestStoreDequeueBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Enqueue(ctx, sampleRecord(id, time.Now())))
	}
	require.NoError(t, store.DequeueBatch(ctx, []string{"a", "c", "ghost"}))
	require.NoError(t, store.DequeueBatch(ctx, nil))

	records, err := store.PendingErrors(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "b", records[0].ID)
}

func TestStoreIncrementRetry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Enqueue(ctx, sampleRecord("a", time.Now())))

	for want := 1; want <= 3; want++ {
		count, found, err := store.IncrementRetry(ctx, "a")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, want, count)
	}

	_, found, err := store.IncrementRetry(ctx, "ghost")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreDeleteStale(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, WithClock(fixedClock{now: now}))
	ctx := context.Background()

	require.NoError(t, store.Enqueue(ctx, sampleRecord("old-1", now.Add(-25*time.Hour))))
	require.NoError(t, store.Enqueue(ctx, sampleRecord("old-2", now.Add(-25*time.Hour))))
	require.NoError(t, store.Enqueue(ctx, sampleRecord("fresh", now.Add(-time.Hour))))

	deleted, err := store.DeleteStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	records, err := store.PendingErrors(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "fresh", records[0].ID)
}

func TestStoreCountByCategory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, category := range []telemetry.Category{telemetry.CategoryUI, telemetry.CategoryUI, telemetry.CategoryAuth} {
		record := sampleRecord(string(rune('a'+i)), time.Now())
		record.Category = category
		require.NoError(t, store.Enqueue(ctx, record))
	}

	counts, err := store.CountByCategory(ctx)
	require.NoError(t, err)
	require.Equal(t, map[telemetry.Category]int{
		telemetry.CategoryUI:   2,
		telemetry.CategoryAuth: 1,
	}, counts)
}

func TestStoreClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Enqueue(ctx, sampleRecord("a", time.Now())))
	require.NoError(t, store.Clear(ctx))

	size, err := store.QueueSize(ctx)
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestStoreInitCoalesces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Init(context.Background())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestStoreInitFailureIsSticky(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "nested", "telemetry.db")
	store, err := NewStore(path)
	require.NoError(t, err)

	first := store.Init(context.Background())
	require.Error(t, first)

	_, err = store.QueueSize(context.Background())
	require.ErrorIs(t, err, telemetry.ErrStoreUnavailable)
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	ctx := context.Background()

	first, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Init(ctx))
	require.NoError(t, first.Enqueue(ctx, sampleRecord("survivor", time.Now())))
	require.NoError(t, first.Close())

	second, err := NewStore(path)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.Init(ctx))

	records, err := second.PendingErrors(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "survivor", records[0].ID)
}

func TestStoreClosedReturnsErrClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	require.NoError(t, store.Close())

	err = store.Enqueue(context.Background(), sampleRecord("a", time.Now()))
	require.ErrorIs(t, err, ErrClosed)
}
