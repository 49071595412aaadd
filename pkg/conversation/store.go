// Package conversation stores the long-term per-session transcript that
// feeds the GraphQL read API. Unlike checkpointed supervisor state the
// transcript is unbounded and never truncated.
package conversation

import (
	"context"
	"sync"

	"github.com/opsdesk/dispatch/pkg/models"
)

// Store is the long-term conversation history backend.
// A limit of 0 means no limit. GetHistory returns the last limit turns;
// ListSessions returns up to limit session IDs in first-seen order.
type Store interface {
	AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]models.Turn, error)
	ListSessions(ctx context.Context, limit int) ([]string, error)
}

// MemoryStore keeps transcripts in a mutex-guarded map, with a parallel
// slice preserving first-seen session order.
type MemoryStore struct {
	mu       sync.Mutex
	history  map[string][]models.Turn
	sessions []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{history: make(map[string][]models.Turn)}
}

func (s *MemoryStore) AppendTurn(_ context.Context, sessionID string, turn models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.history[sessionID]; !seen {
		s.sessions = append(s.sessions, sessionID)
	}
	s.history[sessionID] = append(s.history[sessionID], turn)
	return nil
}

func (s *MemoryStore) GetHistory(_ context.Context, sessionID string, limit int) ([]models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.history[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]models.Turn(nil), turns...), nil
}

func (s *MemoryStore) ListSessions(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.sessions
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return append([]string(nil), ids...), nil
}

// Compile-time check
var _ Store = (*MemoryStore)(nil)
