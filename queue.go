package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Queue is the telemetry orchestrator: it turns raw error signals into
// durable records, delivers them over the transport, retries undelivered
// records on a timer, and evicts records past the retention window.
//
// A Queue has an explicit lifecycle: New, Init, Destroy. All methods are
// safe for concurrent use.
type Queue struct {
	transport Transport
	cfg       Config

	mu sync.Mutex
	// store is guarded by mu: Init downgrades it to a MemoryStore for the
	// session when the durable backend cannot be opened.
	store          Store
	initialized    bool
	pending        map[string]struct{}
	lastStatus     ConnectionStatus
	unsubAck       func()
	unsubStatus    func()
	reconnectTimer *time.Timer
	done           chan struct{}
	wg             sync.WaitGroup
}

// Stats reports the queue's current delivery state.
type Stats struct {
	// QueueSize is the number of persisted records.
	QueueSize int
	// PendingAck is the number of dispatched records awaiting acknowledgment.
	PendingAck int
}

// New constructs a Queue over a store and a transport. A nil store degrades
// to an in-memory store so capture keeps working for the session even when
// the durable backend could not be constructed.
func New(store Store, transport Transport, opts ...Option) (*Queue, error) {
	if transport == nil {
		return nil, ErrTransportRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	if store == nil {
		cfg.Logger.Warn("telemetry: no durable store, queue is memory-only for this session")
		store = NewMemoryStore()
	}

	return &Queue{
		store:     store,
		transport: transport,
		cfg:       cfg,
		pending:   make(map[string]struct{}),
	}, nil
}

// Init starts the flush and stale-eviction timers, subscribes to transport
// acknowledgment and connectivity events, runs an immediate eviction pass,
// and attempts an initial flush. Calling Init twice is a no-op: no duplicate
// timers or subscriptions are created.
func (q *Queue) Init(ctx context.Context) error {
	q.mu.Lock()
	if q.initialized {
		q.mu.Unlock()

		return nil
	}
	q.initialized = true
	q.done = make(chan struct{})
	q.lastStatus = q.transport.Status()
	q.mu.Unlock()

	if err := q.store.Init(ctx); err != nil {
		// Memory-only degraded mode: captures stay queued and flushable for
		// the rest of the session, they just do not survive a restart.
		q.cfg.Logger.Warn("telemetry: durable store unavailable, continuing memory-only", "err", err)
		q.mu.Lock()
		q.store = NewMemoryStore()
		q.mu.Unlock()
	}

	q.evictStale(ctx)

	unsubAck := q.transport.OnAck(q.handleAck)
	unsubStatus := q.transport.OnStatusChange(q.handleStatus)
	q.mu.Lock()
	if !q.initialized {
		// Destroyed while subscribing; undo before anything leaks.
		q.mu.Unlock()
		unsubAck()
		unsubStatus()

		return nil
	}
	q.unsubAck = unsubAck
	q.unsubStatus = unsubStatus
	done := q.done
	q.mu.Unlock()

	q.wg.Add(2)
	go q.flushLoop(done)
	go q.cleanupLoop(done)

	if err := q.FlushQueue(ctx); err != nil {
		q.cfg.Logger.Warn("telemetry: initial flush failed", "err", err)
	}

	return nil
}

// CaptureError builds a record for the failure, persists it, and makes one
// best-effort send attempt. It never panics and never blocks on delivery;
// the returned error reports internal failures for diagnostics and tests,
// callers are free to ignore it.
func (q *Queue) CaptureError(ctx context.Context, category Category, message string, cause error, extra map[string]any) (id string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			q.cfg.Logger.Error("telemetry: capture panicked", "panic", rec)
			err = fmt.Errorf("%w: %v", ErrCapturePanic, rec)
		}
	}()

	return q.capture(ctx, category, message, cause, "", extra)
}

// CaptureUncaughtError normalizes an uncaught top-level error into a capture
// call, recording the source position alongside it.
func (q *Queue) CaptureUncaughtError(ctx context.Context, message, source string, line, column int, cause error) (string, error) {
	extra := map[string]any{}
	if source != "" {
		extra["source"] = source
	}
	if line > 0 {
		extra["line"] = line
	}
	if column > 0 {
		extra["column"] = column
	}

	return q.CaptureError(ctx, CategoryGlobal, "Uncaught error: "+message, cause, extra)
}

// CaptureUnhandledRejection normalizes a rejected asynchronous operation
// into a capture call. When the reason is an error its message is appended;
// any other value is formatted into the message.
func (q *Queue) CaptureUnhandledRejection(ctx context.Context, reason any) (string, error) {
	if cause, ok := reason.(error); ok {
		return q.CaptureError(ctx, CategoryGlobal, "Unhandled rejection", cause, nil)
	}

	return q.CaptureError(ctx, CategoryGlobal, fmt.Sprintf("Unhandled rejection: %v", reason), nil, nil)
}

// CapturePanic normalizes a recovered panic into a capture call, attaching
// the goroutine stack when provided.
func (q *Queue) CapturePanic(ctx context.Context, recovered any, stack []byte) (id string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			q.cfg.Logger.Error("telemetry: capture panicked", "panic", rec)
			err = fmt.Errorf("%w: %v", ErrCapturePanic, rec)
		}
	}()

	cause, _ := recovered.(error)
	message := fmt.Sprintf("Panic: %v", recovered)
	if cause != nil {
		message = "Panic"
	}

	return q.capture(ctx, CategoryGlobal, message, cause, string(stack), nil)
}

func (q *Queue) capture(ctx context.Context, category Category, message string, cause error, stack string, extra map[string]any) (string, error) {
	if category == "" {
		q.cfg.Logger.Warn("telemetry: capture without category dropped")

		return "", ErrCategoryRequired
	}
	if message == "" {
		q.cfg.Logger.Warn("telemetry: capture without message dropped")

		return "", ErrMessageRequired
	}
	if cause != nil {
		message = message + ": " + cause.Error()
	}

	id, err := q.cfg.Generator.New()
	if err != nil {
		q.cfg.Logger.Error("telemetry: id generation failed", "err", err)

		return "", err
	}

	now := q.cfg.Clock.Now()
	record := Record{
		ID:        id,
		Timestamp: now,
		CreatedAt: now,
		Category:  category,
		Message:   message,
		Stack:     stack,
		Context:   q.buildContext(extra),
	}

	storeErr := q.backing().Enqueue(ctx, record)
	if storeErr != nil {
		q.cfg.Logger.Warn("telemetry: enqueue failed, record is delivery-only", "id", id, "err", storeErr)
	}
	q.cfg.Metrics.AddCaptured(1)

	// Initial best-effort send. Failure here does not count against the
	// retry cap; the periodic flush owns retry accounting.
	q.send(ctx, record, false)

	return id, storeErr
}

// FlushQueue makes one delivery pass over every persisted record that is not
// awaiting acknowledgment. It is a no-op while the transport is offline:
// records are not penalized for a disconnected transport, only for dispatch
// attempts that could not be confirmed.
func (q *Queue) FlushQueue(ctx context.Context) error {
	if !q.transport.Status().Ready() {
		return nil
	}

	records, err := q.backing().PendingErrors(ctx)
	if err != nil {
		q.cfg.Logger.Warn("telemetry: flush could not read queue", "err", err)

		return err
	}

	for i := range records {
		record := records[i]
		if q.isPending(record.ID) {
			continue
		}
		if record.RetryCount >= q.cfg.MaxRetries {
			q.discard(ctx, record)

			continue
		}
		q.send(ctx, record, true)
	}

	q.publishGauges(ctx)

	return nil
}

// Stats returns the persisted queue size and the pending-ack count.
func (q *Queue) Stats(ctx context.Context) Stats {
	size, err := q.backing().QueueSize(ctx)
	if err != nil {
		q.cfg.Logger.Warn("telemetry: queue size unavailable", "err", err)
	}

	q.mu.Lock()
	pending := len(q.pending)
	q.mu.Unlock()

	return Stats{QueueSize: size, PendingAck: pending}
}

// Destroy stops both timers and any scheduled reconnect flush, unsubscribes
// from the transport, and clears the pending-ack set. Safe to call without
// Init and safe to call twice. A destroyed queue can be re-initialized.
func (q *Queue) Destroy() {
	q.mu.Lock()
	if !q.initialized {
		q.pending = make(map[string]struct{})
		q.mu.Unlock()

		return
	}
	q.initialized = false
	close(q.done)
	if q.reconnectTimer != nil {
		q.reconnectTimer.Stop()
		q.reconnectTimer = nil
	}
	unsubAck := q.unsubAck
	unsubStatus := q.unsubStatus
	q.unsubAck = nil
	q.unsubStatus = nil
	q.mu.Unlock()

	if unsubAck != nil {
		unsubAck()
	}
	if unsubStatus != nil {
		unsubStatus()
	}

	q.wg.Wait()

	q.mu.Lock()
	q.pending = make(map[string]struct{})
	q.mu.Unlock()
}

// send dispatches one record, marking it pending-ack immediately before the
// dispatch so a concurrent flush does not double-send it. countFailure
// selects whether an unconfirmed dispatch counts against the retry cap.
func (q *Queue) send(ctx context.Context, record Record, countFailure bool) {
	if !q.transport.Status().Ready() {
		if countFailure {
			q.recordFailure(ctx, record)
		}

		return
	}

	q.markPending(record.ID)
	if err := q.transport.Send(ctx, record.message()); err != nil {
		q.unmarkPending(record.ID)
		q.cfg.Logger.Debug("telemetry: dispatch failed", "id", record.ID, "err", err)
		if countFailure {
			q.recordFailure(ctx, record)
		}

		return
	}

	q.cfg.Metrics.AddSent(1)
}

// recordFailure bumps the record's retry counter and discards it once the
// counter reaches the cap.
func (q *Queue) recordFailure(ctx context.Context, record Record) {
	count, found, err := q.backing().IncrementRetry(ctx, record.ID)
	if err != nil {
		q.cfg.Logger.Warn("telemetry: retry count update failed", "id", record.ID, "err", err)

		return
	}
	if !found {
		// Concurrently acknowledged or evicted; nothing to track.
		return
	}
	q.cfg.Metrics.AddRetried(1)

	if count >= q.cfg.MaxRetries {
		record.RetryCount = count
		q.discard(ctx, record)
	}
}

// discard permanently removes a record that exhausted its retries. Log-only
// by design: bounding local growth is worth losing the record.
func (q *Queue) discard(ctx context.Context, record Record) {
	if err := q.backing().Dequeue(ctx, record.ID); err != nil {
		q.cfg.Logger.Warn("telemetry: discard failed", "id", record.ID, "err", err)

		return
	}
	q.unmarkPending(record.ID)
	q.cfg.Metrics.AddDiscarded(1)
	q.cfg.Logger.Info("telemetry: record discarded after max retries",
		"id", record.ID,
		"category", record.Category,
		"retries", record.RetryCount,
	)
}

// handleAck removes acknowledged records from the store and from the
// pending-ack set.
func (q *Queue) handleAck(event AckEvent) {
	if len(event.ErrorIDs) == 0 {
		return
	}

	ctx := context.Background()
	if err := q.backing().DequeueBatch(ctx, event.ErrorIDs); err != nil {
		q.cfg.Logger.Warn("telemetry: ack dequeue failed", "count", len(event.ErrorIDs), "err", err)

		return
	}

	q.mu.Lock()
	for _, id := range event.ErrorIDs {
		delete(q.pending, id)
	}
	pending := len(q.pending)
	q.mu.Unlock()

	q.cfg.Metrics.AddAcked(len(event.ErrorIDs))
	q.cfg.Metrics.SetPendingAck(pending)
}

// handleStatus schedules a delayed flush when the transport becomes ready,
// so records queued during an outage are retried promptly instead of
// waiting for the next periodic tick.
func (q *Queue) handleStatus(status ConnectionStatus) {
	q.mu.Lock()
	becameReady := status.Ready() && !q.lastStatus.Ready()
	q.lastStatus = status
	if !becameReady || !q.initialized {
		q.mu.Unlock()

		return
	}
	if q.reconnectTimer != nil {
		q.reconnectTimer.Stop()
	}
	q.reconnectTimer = time.AfterFunc(q.cfg.ReconnectFlushDelay, func() {
		if err := q.FlushQueue(context.Background()); err != nil {
			q.cfg.Logger.Warn("telemetry: reconnect flush failed", "err", err)
		}
	})
	q.mu.Unlock()
}

func (q *Queue) flushLoop(done <-chan struct{}) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := q.FlushQueue(context.Background()); err != nil {
				q.cfg.Logger.Warn("telemetry: periodic flush failed", "err", err)
			}
		}
	}
}

func (q *Queue) cleanupLoop(done <-chan struct{}) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			q.evictStale(context.Background())
		}
	}
}

// evictStale removes records older than the retention window regardless of
// retry count. Log-only by design.
func (q *Queue) evictStale(ctx context.Context) {
	deleted, err := q.backing().DeleteStale(ctx, q.cfg.Retention)
	if err != nil {
		q.cfg.Logger.Warn("telemetry: stale eviction failed", "err", err)

		return
	}
	if deleted > 0 {
		q.cfg.Metrics.AddEvicted(deleted)
		q.cfg.Logger.Info("telemetry: stale records evicted",
			"count", deleted,
			"retention", q.cfg.Retention,
		)
	}
}

func (q *Queue) publishGauges(ctx context.Context) {
	size, err := q.backing().QueueSize(ctx)
	if err == nil {
		q.cfg.Metrics.SetQueueSize(size)
	}

	q.mu.Lock()
	pending := len(q.pending)
	q.mu.Unlock()
	q.cfg.Metrics.SetPendingAck(pending)
}

func (q *Queue) backing() Store {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store
}

func (q *Queue) isPending(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[id]

	return ok
}

func (q *Queue) markPending(id string) {
	q.mu.Lock()
	q.pending[id] = struct{}{}
	q.mu.Unlock()
}

func (q *Queue) unmarkPending(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}
