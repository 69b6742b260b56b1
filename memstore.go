package telemetry

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. It backs tests and the degraded mode a
// Queue falls into when the durable store cannot be opened: captures keep
// flowing for the rest of the session, they just do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	clock   Clock
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clock:   SystemClock{},
		records: make(map[string]Record),
	}
}

// Init implements Store. It never fails.
func (s *MemoryStore) Init(context.Context) error {
	return nil
}

// Enqueue implements Store.
func (s *MemoryStore) Enqueue(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record

	return nil
}

// PendingErrors implements Store.
func (s *MemoryStore) PendingErrors(context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}

	return out, nil
}

// Dequeue implements Store.
func (s *MemoryStore) Dequeue(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)

	return nil
}

// DequeueBatch implements Store.
func (s *MemoryStore) DequeueBatch(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}

	return nil
}

// IncrementRetry implements Store.
func (s *MemoryStore) IncrementRetry(_ context.Context, id string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return 0, false, nil
	}
	record.RetryCount++
	s.records[id] = record

	return record.RetryCount, true, nil
}

// DeleteStale implements Store.
func (s *MemoryStore) DeleteStale(_ context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-maxAge)
	deleted := 0
	for id, record := range s.records {
		if record.CreatedAt.Before(cutoff) {
			delete(s.records, id)
			deleted++
		}
	}

	return deleted, nil
}

// QueueSize implements Store.
func (s *MemoryStore) QueueSize(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records), nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record)

	return nil
}
