// Package limiter bounds per-agent invocation concurrency. Each agent
// gets a weighted semaphore sized by its max_concurrent setting plus a
// bounded waiting room; callers beyond the waiting room are rejected
// with ErrOverloaded so the API can shed load instead of queueing
// without bound.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrOverloaded signals that the agent's concurrency slots and waiting
// room are both full.
var ErrOverloaded = errors.New("agent overloaded")

// waiterMultiple sizes the waiting room relative to max_concurrent.
const waiterMultiple = 2

type entry struct {
	sem        *semaphore.Weighted
	waiters    atomic.Int64
	maxWaiters int64
}

// Limiter holds one semaphore per registered agent. Register all agents
// at startup; Acquire/Release are safe for concurrent use.
type Limiter struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func New() *Limiter {
	return &Limiter{entries: make(map[string]*entry)}
}

// Register creates the agent's semaphore. maxConcurrent below 1 is
// clamped to 1.
func (l *Limiter) Register(agentID string, maxConcurrent int) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	l.mu.Lock()
	l.entries[agentID] = &entry{
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		maxWaiters: int64(maxConcurrent * waiterMultiple),
	}
	l.mu.Unlock()
}

// Acquire takes one slot for the agent, waiting if all slots are busy.
// Returns ErrOverloaded when the waiting room is full, or the context
// error if it expires while waiting. Callers must Release exactly once
// per successful Acquire.
func (l *Limiter) Acquire(ctx context.Context, agentID string) error {
	e, err := l.get(agentID)
	if err != nil {
		return err
	}

	if e.sem.TryAcquire(1) {
		return nil
	}

	if e.waiters.Add(1) > e.maxWaiters {
		e.waiters.Add(-1)
		return fmt.Errorf("%w: %s", ErrOverloaded, agentID)
	}
	defer e.waiters.Add(-1)

	return e.sem.Acquire(ctx, 1)
}

// Release returns one slot for the agent.
func (l *Limiter) Release(agentID string) {
	if e, err := l.get(agentID); err == nil {
		e.sem.Release(1)
	}
}

func (l *Limiter) get(agentID string) (*entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[agentID]
	if !ok {
		return nil, fmt.Errorf("agent not registered with limiter: %s", agentID)
	}
	return e, nil
}
