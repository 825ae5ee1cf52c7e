package timeutil

import "time"

// Clock supplies the current instant. Injected into anything that makes
// deadline decisions so tests can pin time.
type Clock interface {
	Now() time.Time
}

// RealClock returns the wall clock in UTC regardless of the host timezone,
// so deadline comparisons are never skewed by server configuration.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant. Test helper.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time {
	return c.Instant.UTC()
}

// SecondsRemaining returns the whole seconds from now until deadline,
// clamped at zero.
func SecondsRemaining(deadline, now time.Time) int64 {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// IsExpired reports whether now is strictly after deadline. A challenge
// ending exactly at its deadline is not yet expired.
func IsExpired(deadline, now time.Time) bool {
	return now.After(deadline)
}
