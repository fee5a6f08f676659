package core

import (
	"errors"
	"sync"
	"time"
)

// BreakerState represents the state of a delivery circuit breaker.
type BreakerState string

const (
	// BreakerClosed means sends pass through normally.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen means sends are refused until the cooldown elapses.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen means a probe send is testing whether the channel
	// recovered.
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrBreakerOpen is returned by Allow while the breaker is open.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig holds circuit breaker tuning for a notification channel.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening.
	MaxFailures int
	// Cooldown is how long the breaker stays open before a probe send.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the defaults used for notification channels.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 3, Cooldown: time.Minute}
}

// Breaker is a minimal circuit breaker for per-channel delivery isolation.
// A slow or failing channel trips its own breaker without affecting the
// other channels.
type Breaker struct {
	config   BreakerConfig
	clock    Clock
	state    BreakerState
	failures int
	openedAt time.Time
	mu       sync.Mutex
}

// NewBreaker creates a Breaker. Zero or negative config values are replaced
// with defaults.
func NewBreaker(config BreakerConfig, clock Clock) *Breaker {
	def := DefaultBreakerConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = def.MaxFailures
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Breaker{config: config, clock: clock, state: BreakerClosed}
}

// Allow reports whether a send may proceed. While open, it transitions to
// half-open once the cooldown has elapsed and lets a single probe through.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.clock.Now().Sub(b.openedAt) < b.config.Cooldown {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
	}
	return nil
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}

// RecordFailure counts a failed send, opening the breaker when the
// consecutive-failure ceiling is reached. A half-open probe failure reopens
// immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.config.MaxFailures {
		b.state = BreakerOpen
		b.openedAt = b.clock.Now()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
