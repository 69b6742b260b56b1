package telemetry

// Metrics captures queue-level counters and gauges.
type Metrics interface {
	// AddCaptured increments the count of captured errors.
	AddCaptured(count int)
	// AddSent increments the count of dispatched records.
	AddSent(count int)
	// AddAcked increments the count of acknowledged records.
	AddAcked(count int)
	// AddRetried increments the count of failed delivery attempts.
	AddRetried(count int)
	// AddDiscarded increments the count of records dropped at the retry cap.
	AddDiscarded(count int)
	// AddEvicted increments the count of records removed by stale eviction.
	AddEvicted(count int)
	// SetQueueSize updates the current persisted queue size.
	SetQueueSize(count int)
	// SetPendingAck updates the current in-memory pending-ack count.
	SetPendingAck(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// AddCaptured implements Metrics.
func (NopMetrics) AddCaptured(int) {}

// AddSent implements Metrics.
func (NopMetrics) AddSent(int) {}

// AddAcked implements Metrics.
func (NopMetrics) AddAcked(int) {}

// AddRetried implements Metrics.
func (NopMetrics) AddRetried(int) {}

// AddDiscarded implements Metrics.
func (NopMetrics) AddDiscarded(int) {}

// AddEvicted implements Metrics.
func (NopMetrics) AddEvicted(int) {}

// SetQueueSize implements Metrics.
func (NopMetrics) SetQueueSize(int) {}

// SetPendingAck implements Metrics.
func (NopMetrics) SetPendingAck(int) {}
