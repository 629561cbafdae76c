package resilience

import (
	"errors"
	"sync"
	"time"
)

// RateLimitError is a provider refusing work because of quota or throttling.
// RetryAfter is the wait the provider asked for, zero when it gave none.
type RateLimitError struct {
	Provider   string
	Message    string
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "rate limited"
	}
	if e.Provider == "" {
		return msg
	}
	return e.Provider + ": " + msg
}

func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

// RetryAfter returns the wait requested by a rate limited provider.
func RetryAfter(err error) (time.Duration, bool) {
	var rl RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter <= 0 {
		return 0, false
	}
	return rl.RetryAfter, true
}

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	// BreakerHalfOpen lets a single probe call through after the cooldown.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker stops calling a provider after threshold consecutive
// tripping failures. It stays open for the cooldown, or for the provider's
// Retry-After when that is longer, then admits one probe.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	threshold int
	cooldown  time.Duration
	reopenAt  time.Time
	probing   bool

	// Trips selects which errors count toward opening. Defaults to IsRateLimit.
	Trips func(error) bool
	Now   func() time.Time
	// OnStateChange runs after every transition, outside the breaker lock.
	OnStateChange func(from, to BreakerState)
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, Trips: IsRateLimit, Now: time.Now}
}

func (c *CircuitBreaker) State() BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Allow reports whether a call may proceed. Every allowed call must be
// followed by Record.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	from := c.state
	allowed := true
	switch c.state {
	case BreakerOpen:
		if c.now().Before(c.reopenAt) {
			allowed = false
			break
		}
		c.state = BreakerHalfOpen
		c.probing = true
	case BreakerHalfOpen:
		if c.probing {
			allowed = false
		} else {
			c.probing = true
		}
	}
	to := c.state
	c.mu.Unlock()
	c.changed(from, to)
	return allowed
}

// Record feeds back the outcome of an allowed call. Errors that do not trip
// the breaker count as the provider answering.
func (c *CircuitBreaker) Record(err error) {
	trips := c.Trips
	if trips == nil {
		trips = IsRateLimit
	}
	c.mu.Lock()
	from := c.state
	c.probing = false
	if err == nil || !trips(err) {
		c.failures = 0
		c.state = BreakerClosed
	} else {
		c.failures++
		if c.state == BreakerHalfOpen || c.failures >= c.threshold {
			hold := c.cooldown
			if wait, ok := RetryAfter(err); ok && wait > hold {
				hold = wait
			}
			c.state = BreakerOpen
			c.reopenAt = c.now().Add(hold)
			c.failures = 0
		}
	}
	to := c.state
	c.mu.Unlock()
	c.changed(from, to)
}

func (c *CircuitBreaker) changed(from, to BreakerState) {
	if from != to && c.OnStateChange != nil {
		c.OnStateChange(from, to)
	}
}

func (c *CircuitBreaker) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
