package telemetry

import "time"

// Clock is the time source for capture timestamps and stale-record cutoffs.
// Tests substitute a fixed or stepping implementation.
type Clock interface {
	// Now reports the current time.
	Now() time.Time
}

// SystemClock reads the wall clock, normalized to UTC.
type SystemClock struct{}

// Now reports the current wall-clock time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
