package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSecondsRemaining(t *testing.T) {
	now := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)

	assert.Equal(t, int64(3600), SecondsRemaining(now.Add(time.Hour), now))
	assert.Equal(t, int64(0), SecondsRemaining(now, now))
	assert.Equal(t, int64(0), SecondsRemaining(now.Add(-time.Second), now))

	// Sub-second remainders floor.
	assert.Equal(t, int64(1), SecondsRemaining(now.Add(1900*time.Millisecond), now))
}

func TestIsExpired(t *testing.T) {
	deadline := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)

	assert.False(t, IsExpired(deadline, deadline.Add(-time.Second)))
	assert.False(t, IsExpired(deadline, deadline), "deadline instant itself is not expired")
	assert.True(t, IsExpired(deadline, deadline.Add(time.Second)))
}

func TestRealClockReturnsUTC(t *testing.T) {
	now := RealClock{}.Now()
	assert.Equal(t, time.UTC, now.Location())
}

func TestFixedClock(t *testing.T) {
	instant := time.Date(2025, 6, 1, 7, 0, 0, 0, time.FixedZone("JST", 9*3600))
	clock := FixedClock{Instant: instant}

	assert.True(t, clock.Now().Equal(instant))
	assert.Equal(t, time.UTC, clock.Now().Location())
}
