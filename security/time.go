package security

import "time"

// Clock reports the current instant. Expiry decisions go through a Clock so
// they can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the process wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// IsExpired reports whether a record valid until validTo is expired at now.
// The boundary instant itself counts as expired.
func IsExpired(now, validTo time.Time) bool {
	return !now.Before(validTo)
}

// TTL returns the remaining lifetime of a record valid until validTo,
// or zero when it is already expired.
func TTL(now, validTo time.Time) time.Duration {
	if IsExpired(now, validTo) {
		return 0
	}
	return validTo.Sub(now)
}
