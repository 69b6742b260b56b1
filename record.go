package telemetry

import "time"

// Category tags the subsystem that produced an error. The taxonomy is open:
// callers may pass any non-empty value, the constants below cover the
// subsystems the client reports from today.
type Category string

const (
	// CategoryUI covers errors raised by view components.
	CategoryUI Category = "ui"
	// CategoryNetwork covers API and request failures.
	CategoryNetwork Category = "network"
	// CategoryStorage covers local cache and persistence failures.
	CategoryStorage Category = "storage"
	// CategoryAuth covers authentication and session failures.
	CategoryAuth Category = "auth"
	// CategoryRealtime covers transport and subscription failures.
	CategoryRealtime Category = "realtime"
	// CategoryGlobal is used by the uncaught-failure adapters.
	CategoryGlobal Category = "global"
)

// Record is one queued error, persisted until the collector acknowledges it.
type Record struct {
	// ID is a UUID v7 assigned at capture time.
	ID string
	// Timestamp is the capture time. Never mutated after creation.
	Timestamp time.Time
	// CreatedAt equals Timestamp at creation and is the basis for
	// stale eviction.
	CreatedAt time.Time
	// Category names the subsystem that produced the error.
	Category Category
	// Message is the human-readable description, with the error message
	// appended when one was available.
	Message string
	// Stack is an optional trace string.
	Stack string
	// Context is the snapshot captured alongside the error.
	Context *ErrorContext
	// RetryCount is incremented once per failed delivery attempt on the
	// periodic flush path. It only ever increases; the record is removed
	// once it reaches the configured retry cap.
	RetryCount int
}

// payload converts the record into its outbound wire form.
func (r Record) payload() ErrorPayload {
	return ErrorPayload{
		ID:        r.ID,
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
		Category:  r.Category,
		Message:   r.Message,
		Stack:     r.Stack,
		Context:   r.Context,
	}
}

// message wraps the record payload in the telemetry envelope.
func (r Record) message() Message {
	return Message{
		Type:      messageTypeTelemetry,
		Operation: operationError,
		Data:      r.payload(),
	}
}
