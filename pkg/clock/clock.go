// Package clock provides an injectable wall-clock source so callers can
// stamp records deterministically in tests.
package clock

import "time"

// Clock returns the current UTC time. RealClock is used everywhere except
// tests, which substitute a fixed or stepping function.
type Clock func() time.Time

// RealClock returns time.Now() in UTC.
func RealClock() time.Time {
	return time.Now().UTC()
}

// Format renders t as RFC-3339 with a UTC offset, the wire format for every
// timestamp field in this module.
func Format(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Parse is the inverse of Format. An empty string is not a valid timestamp;
// callers check for that case explicitly before calling Parse.
func Parse(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
