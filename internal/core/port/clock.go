package port

import "time"

// Clock abstracts calendar time so expiry windows are deterministic in tests.
type Clock interface {
	UtcNow() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// UtcNow implements Clock.
func (SystemClock) UtcNow() time.Time {
	return time.Now().UTC()
}
