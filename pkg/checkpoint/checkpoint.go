// Package checkpoint persists supervisor state between turns, keyed by
// session ID. Two backends: in-memory with TTL expiry (the default) and
// PostgreSQL for deployments that need state to survive restarts.
package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/opsdesk/dispatch/pkg/models"
)

// janitorInterval is how often the memory backend sweeps expired entries.
// Expiry is also enforced lazily on Get, so the sweep only bounds memory.
const janitorInterval = 5 * time.Minute

// Checkpointer loads and saves per-session supervisor state.
// Get returns (nil, nil) when no checkpoint exists.
type Checkpointer interface {
	Get(ctx context.Context, sessionID string) (*models.SupervisorState, error)
	Put(ctx context.Context, state *models.SupervisorState) error
	Delete(ctx context.Context, sessionID string) error
}

type memoryEntry struct {
	state     *models.SupervisorState
	expiresAt time.Time
}

// MemoryCheckpointer keeps checkpoints in a mutex-guarded map. Entries
// expire after the configured TTL (zero disables expiry). States are
// deep-copied on both Put and Get so callers never share memory with
// the store.
type MemoryCheckpointer struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]memoryEntry

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewMemoryCheckpointer creates the in-memory backend and starts its
// expiry janitor. Call Close to stop the janitor.
func NewMemoryCheckpointer(ttl time.Duration) *MemoryCheckpointer {
	c := &MemoryCheckpointer{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if ttl > 0 {
		go c.janitor()
	}
	return c
}

func (c *MemoryCheckpointer) Get(_ context.Context, sessionID string) (*models.SupervisorState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[sessionID]
	if !ok {
		return nil, nil
	}
	if c.expired(entry) {
		delete(c.entries, sessionID)
		return nil, nil
	}
	return entry.state.Clone(), nil
}

func (c *MemoryCheckpointer) Put(_ context.Context, state *models.SupervisorState) error {
	entry := memoryEntry{state: state.Clone()}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[state.SessionID] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryCheckpointer) Delete(_ context.Context, sessionID string) error {
	c.mu.Lock()
	delete(c.entries, sessionID)
	c.mu.Unlock()
	return nil
}

// Close stops the expiry janitor.
func (c *MemoryCheckpointer) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *MemoryCheckpointer) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt)
}

func (c *MemoryCheckpointer) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCheckpointer) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sid, entry := range c.entries {
		if c.expired(entry) {
			delete(c.entries, sid)
		}
	}
}

// Compile-time check
var _ Checkpointer = (*MemoryCheckpointer)(nil)
