// Package supervisor drives the per-session state machine:
// plan → route → invoke → aggregate → {escalate | end}. Nodes are
// functions returning state deltas; the driver merges each delta and
// picks the next node from a static transition table.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/opsdesk/dispatch/pkg/breaker"
	"github.com/opsdesk/dispatch/pkg/checkpoint"
	"github.com/opsdesk/dispatch/pkg/config"
	"github.com/opsdesk/dispatch/pkg/faithfulness"
	"github.com/opsdesk/dispatch/pkg/hitl"
	"github.com/opsdesk/dispatch/pkg/llm"
	"github.com/opsdesk/dispatch/pkg/models"
	"github.com/opsdesk/dispatch/pkg/registry"
)

const (
	// InvokeFailureReply is appended when the agent and its failover both
	// fail.
	InvokeFailureReply = "I'm sorry, I'm having trouble right now. Please try again in a moment or contact support directly."

	// EscalationReply is always the last message of an escalated turn.
	EscalationReply = "I'm connecting you with a human agent. Please hold."
)

type node int

const (
	nodePlan node = iota
	nodeRoute
	nodeInvoke
	nodeAggregate
	nodeEscalate
	nodeEnd
)

// Supervisor owns the turn pipeline for every session. Concurrent turns
// for different sessions run in parallel; turns for the same session are
// serialized on a per-session lock around checkpoint load and save.
type Supervisor struct {
	cfg       *config.Config
	registry  *registry.Registry
	llmClient llm.Client
	scorer    faithfulness.Scorer
	breaker   *breaker.CircuitBreaker
	hitl      hitl.Handler
	ckpt      checkpoint.Checkpointer

	useOps      bool
	planPattern *regexp.Regexp

	sessionLocks sync.Map // session_id -> *sync.Mutex
	ckptDegraded atomic.Bool
}

// New wires the supervisor. The circuit breaker may be nil; together
// with agent_ops_enabled that disables circuit filtering and failover.
func New(
	cfg *config.Config,
	reg *registry.Registry,
	llmClient llm.Client,
	scorer faithfulness.Scorer,
	cb *breaker.CircuitBreaker,
	hitlHandler hitl.Handler,
	ckpt checkpoint.Checkpointer,
) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		registry:    reg,
		llmClient:   llmClient,
		scorer:      scorer,
		breaker:     cb,
		hitl:        hitlHandler,
		ckpt:        ckpt,
		useOps:      cfg.AgentOpsEnabled && cb != nil,
		planPattern: buildPlanPattern(reg.IDs()),
	}
}

// buildPlanPattern matches any registered agent ID as a whole word in
// the planner's reply.
func buildPlanPattern(ids []string) *regexp.Regexp {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = regexp.QuoteMeta(id)
	}
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)
}

// ProcessTurn runs one full turn for the session and returns the final
// state. The returned state's last message is the reply to the user.
func (s *Supervisor) ProcessTurn(ctx context.Context, sessionID, userID, message string, suggestedAgentIDs []string) (*models.SupervisorState, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	state := s.loadState(ctx, sessionID, userID)
	state.BeginTurn(message, suggestedAgentIDs)

	s.run(ctx, state)

	state.TruncateMessages(s.cfg.MessagesMaxLen)
	if err := s.ckpt.Put(ctx, state); err != nil {
		slog.Error("Checkpoint save failed, session will restart from empty history",
			"session_id", sessionID, "error", err)
		s.ckptDegraded.Store(true)
	} else {
		s.ckptDegraded.Store(false)
	}

	return state, nil
}

// run executes the node pipeline on the given state.
func (s *Supervisor) run(ctx context.Context, state *models.SupervisorState) {
	for n := nodePlan; n != nodeEnd; {
		var d delta
		switch n {
		case nodePlan:
			d = s.planNode(ctx, state)
		case nodeRoute:
			d = s.routeNode(state)
		case nodeInvoke:
			d = s.invokeNode(ctx, state)
		case nodeAggregate:
			d = s.aggregateNode(ctx, state)
		case nodeEscalate:
			d = s.escalateNode(ctx, state)
		}
		mergeDelta(state, d)
		n = s.next(n, state)
	}
}

// next is the static transition table; only aggregate branches.
func (s *Supervisor) next(n node, state *models.SupervisorState) node {
	switch n {
	case nodePlan:
		return nodeRoute
	case nodeRoute:
		return nodeInvoke
	case nodeInvoke:
		return nodeAggregate
	case nodeAggregate:
		if state.NeedsEscalation {
			return nodeEscalate
		}
		return nodeEnd
	default:
		return nodeEnd
	}
}

// loadState fetches the session's checkpoint. Load failure degrades to
// an empty history for this turn instead of failing the request.
func (s *Supervisor) loadState(ctx context.Context, sessionID, userID string) *models.SupervisorState {
	state, err := s.ckpt.Get(ctx, sessionID)
	if err != nil {
		slog.Error("Checkpoint load failed, starting turn with empty history",
			"session_id", sessionID, "error", err)
		s.ckptDegraded.Store(true)
		return models.NewSupervisorState(sessionID, userID)
	}
	if state == nil {
		return models.NewSupervisorState(sessionID, userID)
	}
	state.UserID = userID
	return state
}

func (s *Supervisor) lockSession(sessionID string) func() {
	v, _ := s.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CheckpointerDegraded reports whether the most recent checkpoint
// operation failed. Feeds the health endpoint.
func (s *Supervisor) CheckpointerDegraded() bool {
	return s.ckptDegraded.Load()
}

// ClearSession drops the session's checkpoint.
func (s *Supervisor) ClearSession(ctx context.Context, sessionID string) error {
	unlock := s.lockSession(sessionID)
	defer unlock()
	if err := s.ckpt.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear session %s: %w", sessionID, err)
	}
	return nil
}
