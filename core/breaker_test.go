package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Sleep(d time.Duration, _ <-chan struct{}) {
	if d > 0 {
		c.now = c.now.Add(d)
	}
}

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)}
	b := NewBreaker(BreakerConfig{MaxFailures: 3, Cooldown: time.Minute}, clock)

	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow())

	b.RecordFailure()
	b.RecordFailure()
	assert.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)}
	b := NewBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Minute}, clock)

	b.RecordFailure()
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	// After the cooldown a single probe is allowed.
	clock.advance(61 * time.Second)
	assert.NoError(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())

	// A failed probe reopens immediately.
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	// A successful probe closes the breaker.
	clock.advance(61 * time.Second)
	assert.NoError(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)}
	b := NewBreaker(BreakerConfig{MaxFailures: 2, Cooldown: time.Minute}, clock)

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.Equal(t, BreakerClosed, b.State())
}
