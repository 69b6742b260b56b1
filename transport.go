package telemetry

import "context"

const (
	messageTypeTelemetry = "telemetry"
	operationError       = "error"
)

// ConnectionStatus reports the transport's current connectivity.
type ConnectionStatus struct {
	Connected     bool
	Authenticated bool
}

// Ready reports whether the transport can dispatch messages.
func (s ConnectionStatus) Ready() bool {
	return s.Connected && s.Authenticated
}

// Message is the outbound telemetry envelope.
type Message struct {
	Type      string       `json:"type"`
	Operation string       `json:"operation"`
	Data      ErrorPayload `json:"data"`
}

// ErrorPayload is the wire form of a queued error.
type ErrorPayload struct {
	ID        string        `json:"id"`
	Timestamp string        `json:"timestamp"`
	Category  Category      `json:"category"`
	Message   string        `json:"message"`
	Stack     string        `json:"stack,omitempty"`
	Context   *ErrorContext `json:"context,omitempty"`
}

// AckEvent carries a batch of record ids acknowledged by the collector. The
// collector may acknowledge per message or in batches.
type AckEvent struct {
	ErrorIDs []string `json:"error_ids"`
}

// Transport is the realtime channel used to dispatch telemetry and receive
// acknowledgments. Implementations must deliver events from a single
// goroutine per subscriber and must tolerate Send being called concurrently.
type Transport interface {
	// Status returns the current connectivity state.
	Status() ConnectionStatus
	// Send dispatches a message. It returns an error when the message could
	// not be handed to the underlying channel; fire-and-forget beyond that.
	Send(ctx context.Context, msg Message) error
	// OnAck registers a handler for acknowledgment batches and returns an
	// unsubscribe handle.
	OnAck(fn func(AckEvent)) (unsubscribe func())
	// OnStatusChange registers a handler for connectivity transitions and
	// returns an unsubscribe handle.
	OnStatusChange(fn func(ConnectionStatus)) (unsubscribe func())
}
