package telemetry

import "errors"

var (
	// ErrCategoryRequired is returned when a capture call has an empty category.
	ErrCategoryRequired = errors.New("telemetry: category is required")
	// ErrMessageRequired is returned when a capture call has an empty message.
	ErrMessageRequired = errors.New("telemetry: message is required")
	// ErrTransportRequired is returned when a Queue is constructed without a transport.
	ErrTransportRequired = errors.New("telemetry: transport is required")
	// ErrStoreUnavailable signals that the durable store could not be opened
	// and the operation was skipped.
	ErrStoreUnavailable = errors.New("telemetry: store is unavailable")
	// ErrCapturePanic indicates that a capture call recovered from a panic.
	ErrCapturePanic = errors.New("telemetry: capture panicked")
)
