package telemetry

import (
	"context"
	"time"
)

// Store is the durable backing for queued errors. It is intentionally
// independent of the application's primary storage so telemetry keeps
// working when that storage is corrupted or unavailable.
//
// Implementations must be safe for concurrent use: a capture can run while a
// flush is in progress. Init must coalesce concurrent calls into a single
// underlying open and resolve every caller from that one result.
type Store interface {
	// Init opens the backing store and creates its schema if absent.
	// Idempotent; after a failed open, later calls return the same error.
	Init(ctx context.Context) error
	// Enqueue upserts a record by id. A storage failure is reported as an
	// error, never a panic; callers treat it as "skip".
	Enqueue(ctx context.Context, record Record) error
	// PendingErrors returns all persisted records. Order is unspecified.
	PendingErrors(ctx context.Context) ([]Record, error)
	// Dequeue deletes a record by id. Deleting a missing id is not an error.
	Dequeue(ctx context.Context, id string) error
	// DequeueBatch deletes several records at once. Missing ids are skipped.
	DequeueBatch(ctx context.Context, ids []string) error
	// IncrementRetry bumps a record's retry counter and returns the new
	// value. found is false when the record no longer exists; that is a
	// no-op, not an error.
	IncrementRetry(ctx context.Context, id string) (count int, found bool, err error)
	// DeleteStale removes every record whose CreatedAt is older than
	// now-maxAge and returns the number removed.
	DeleteStale(ctx context.Context, maxAge time.Duration) (int, error)
	// QueueSize returns the number of persisted records.
	QueueSize(ctx context.Context) (int, error)
	// Clear wipes the queue. Diagnostic and test use only.
	Clear(ctx context.Context) error
}
