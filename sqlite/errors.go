package sqlite

import "errors"

var (
	// ErrPathRequired is returned when NewStore is called with an empty path.
	ErrPathRequired = errors.New("telemetry sqlite: database path is required")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("telemetry sqlite: store is closed")
)
