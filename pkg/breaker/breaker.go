// Package breaker implements the per-agent circuit breaker that drives
// route-time filtering and invoke-time failover. State changes only on
// invocation outcomes; there is no background probing.
package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// State is a circuit's position: closed = normal, open = failing,
// half-open = probing after cooldown.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Status is a point-in-time snapshot of one agent's circuit for health
// reporting.
type Status struct {
	State           State     `json:"state"`
	FailureCount    int       `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time"`
}

type circuit struct {
	state           State
	failureCount    int
	lastFailureTime time.Time
}

// CircuitBreaker tracks per-agent circuits. After threshold consecutive
// failures a circuit opens and the agent is skipped until the cooldown
// elapses (then half-open: one success closes it, one failure re-opens).
// Safe for concurrent use; circuits are created lazily on first reference.
type CircuitBreaker struct {
	failureThreshold int
	cooldown         time.Duration

	mu       sync.Mutex
	circuits map[string]*circuit

	// Injectable for tests.
	now func() time.Time
}

// NewCircuitBreaker creates a breaker with the given threshold and
// cooldown. Values below the minimums are clamped.
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if cooldown < time.Second {
		cooldown = time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		circuits:         make(map[string]*circuit),
		now:              time.Now,
	}
}

// get returns the agent's circuit, creating it closed. Caller holds mu.
func (b *CircuitBreaker) get(agentID string) *circuit {
	c, ok := b.circuits[agentID]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[agentID] = c
	}
	return c
}

// maybeTransitionFromOpen moves open → half-open once the cooldown has
// elapsed. Observed lazily on reads. Caller holds mu.
func (b *CircuitBreaker) maybeTransitionFromOpen(agentID string, c *circuit) {
	if c.state != StateOpen {
		return
	}
	if b.now().Sub(c.lastFailureTime) >= b.cooldown {
		c.state = StateHalfOpen
		c.failureCount = 0
		slog.Info("Circuit half-open, will probe on next invocation", "agent", agentID)
	}
}

// IsAvailable reports whether the agent may be invoked (closed or
// half-open).
func (b *CircuitBreaker) IsAvailable(agentID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(agentID)
	b.maybeTransitionFromOpen(agentID, c)
	return c.state != StateOpen
}

// RecordSuccess resets the failure count and closes the circuit.
func (b *CircuitBreaker) RecordSuccess(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(agentID)
	if c.state != StateClosed {
		slog.Info("Circuit closed", "agent", agentID)
	}
	c.failureCount = 0
	c.state = StateClosed
}

// RecordFailure increments the failure count and may open the circuit:
// a half-open circuit re-opens on any failure, a closed one opens at the
// threshold.
func (b *CircuitBreaker) RecordFailure(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(agentID)
	c.lastFailureTime = b.now()
	c.failureCount++
	switch {
	case c.state == StateHalfOpen:
		c.state = StateOpen
		// A re-opened circuit reports its count at the threshold.
		c.failureCount = b.failureThreshold
		slog.Warn("Circuit re-opened after half-open probe failure", "agent", agentID)
	case c.failureCount >= b.failureThreshold && c.state == StateClosed:
		c.state = StateOpen
		slog.Warn("Circuit opened",
			"agent", agentID, "consecutive_failures", c.failureCount)
	}
}

// GetState returns the agent's current state, applying the lazy
// open → half-open transition first.
func (b *CircuitBreaker) GetState(agentID string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(agentID)
	b.maybeTransitionFromOpen(agentID, c)
	return c.state
}

// GetStatus returns a snapshot for health reporting.
func (b *CircuitBreaker) GetStatus(agentID string) Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(agentID)
	b.maybeTransitionFromOpen(agentID, c)
	return Status{
		State:           c.state,
		FailureCount:    c.failureCount,
		LastFailureTime: c.lastFailureTime,
	}
}
