package telemetry

import (
	"fmt"

	"github.com/google/uuid"
)

// IDGenerator creates new record identifiers. Identifiers must be unique
// within a session; the collector deduplicates deliveries by them.
type IDGenerator interface {
	// New returns a new identifier.
	New() (string, error)
}

// UUIDv7Generator produces time-ordered UUID v7 identifiers: a millisecond
// timestamp prefix followed by random bits, so ids sort by capture time.
type UUIDv7Generator struct{}

// New creates a new UUID v7 identifier string.
func (UUIDv7Generator) New() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("telemetry: generate id: %w", err)
	}

	return id.String(), nil
}
