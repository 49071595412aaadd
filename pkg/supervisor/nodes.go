package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opsdesk/dispatch/pkg/agent"
	"github.com/opsdesk/dispatch/pkg/config"
	"github.com/opsdesk/dispatch/pkg/llm"
	"github.com/opsdesk/dispatch/pkg/models"
)

// planQueryLimit caps the user text embedded in the planner prompt.
const planQueryLimit = 500

// delta is one node's contribution to the state. Nil pointer fields are
// left unchanged by the merge; messages append.
type delta struct {
	messages         []models.Message
	plannedAgentIDs  []string
	currentAgent     *string
	lastRAGContext   *string
	resolved         *bool
	needsEscalation  *bool
	escalationReason *models.EscalationReason
}

func mergeDelta(state *models.SupervisorState, d delta) {
	state.Messages = append(state.Messages, d.messages...)
	if d.plannedAgentIDs != nil {
		state.PlannedAgentIDs = d.plannedAgentIDs
	}
	if d.currentAgent != nil {
		state.CurrentAgent = *d.currentAgent
	}
	if d.lastRAGContext != nil {
		state.LastRAGContext = *d.lastRAGContext
	}
	if d.resolved != nil {
		state.Resolved = *d.resolved
	}
	if d.needsEscalation != nil {
		state.NeedsEscalation = *d.needsEscalation
	}
	if d.escalationReason != nil {
		state.EscalationReason = *d.escalationReason
	}
}

func ptr[T any](v T) *T { return &v }

// planNode asks the LLM to pick one registered agent for this turn.
// Any failure is a no-op; route falls back to the router's suggestions.
func (s *Supervisor) planNode(ctx context.Context, state *models.SupervisorState) delta {
	if !s.cfg.PlanningEnabled {
		return delta{}
	}

	userText := strings.TrimSpace(models.LastUserContent(state.Messages))
	if userText == "" {
		return delta{}
	}
	if len(userText) > planQueryLimit {
		userText = userText[:planQueryLimit]
	}

	available := s.registry.IDs()
	wordList := strings.Join(available, " or ")
	prompt := fmt.Sprintf(
		"User message: %s\nSuggested agents from router: %v\nAvailable agents: %v. "+
			"Which single agent should handle this? Reply with exactly one word: %s.",
		userText, state.SuggestedAgentIDs, available, wordList)

	resp, err := s.llmClient.Chat(ctx, []models.Message{
		{Role: models.RoleSystem, Content: "You are a router. Reply with only one word: " + wordList + "."},
		models.NewUserMessage(prompt),
	}, nil, llm.Options{Model: s.cfg.ModelID})
	if err != nil {
		slog.Warn("Planning failed, using router suggestions", "error", err)
		return delta{}
	}

	match := s.planPattern.FindString(strings.ToLower(strings.TrimSpace(resp.Content)))
	if match == "" {
		slog.Debug("Planner reply named no known agent", "reply", resp.Content)
		return delta{}
	}
	return delta{plannedAgentIDs: []string{match}}
}

// routeNode picks current_agent from the planner's choice or the
// router's suggestions, skipping open circuits. Suggestions that are
// not agent ids resolve through capability advertisements. Filtering
// never starves the turn: when every candidate is filtered the original
// order is kept and invoke's failover deals with the open circuit.
func (s *Supervisor) routeNode(state *models.SupervisorState) delta {
	candidates := state.PlannedAgentIDs
	if len(candidates) == 0 {
		candidates = state.SuggestedAgentIDs
	}
	if len(candidates) == 0 {
		candidates = []string{config.DefaultAgentID}
	}

	for _, id := range candidates {
		if _, ok := s.registry.Get(id); !ok {
			// A suggestion that is not an agent id may still name an
			// advertised capability.
			for _, capID := range s.registry.ByCapability([]string{id}) {
				if !s.useOps || s.breaker.IsAvailable(capID) {
					slog.Info("Resolved suggestion by capability", "suggestion", id, "agent", capID)
					return delta{currentAgent: ptr(capID)}
				}
			}
			continue
		}
		if s.useOps && !s.breaker.IsAvailable(id) {
			slog.Info("Skipping agent with open circuit", "agent", id)
			continue
		}
		return delta{currentAgent: ptr(id)}
	}

	// Every candidate was unregistered or circuit-open. Prefer an
	// available fallback; otherwise keep the first registered candidate
	// so filtering never starves the turn.
	fallbackID := s.registry.FallbackAgentID()
	if s.useOps && s.breaker.IsAvailable(fallbackID) {
		if _, ok := s.registry.Get(fallbackID); ok {
			return delta{currentAgent: ptr(fallbackID)}
		}
	}
	for _, id := range candidates {
		if _, ok := s.registry.Get(id); ok {
			return delta{currentAgent: ptr(id)}
		}
	}
	return delta{currentAgent: ptr(fallbackID)}
}

// invokeNode runs the chosen agent, recording circuit outcomes. On
// failure it tries the fallback agent once, then degrades to a friendly
// failure reply with an invocation_failed escalation.
func (s *Supervisor) invokeNode(ctx context.Context, state *models.SupervisorState) delta {
	agentID := state.CurrentAgent
	if agentID == "" {
		agentID = s.registry.FallbackAgentID()
	}

	result, err := s.runAgent(ctx, agentID, state)
	if err == nil {
		return resultDelta(agentID, result)
	}
	slog.Error("Agent invocation failed", "agent", agentID, "error", err)

	fallbackID := s.registry.FallbackAgentID()
	if s.cfg.FailoverEnabled && s.useOps && fallbackID != agentID {
		if result, err := s.runAgent(ctx, fallbackID, state); err == nil {
			slog.Info("Failover succeeded", "agent", fallbackID)
			return resultDelta(fallbackID, result)
		}
		slog.Error("Failover agent invocation failed", "agent", fallbackID)
	}

	return delta{
		messages:         []models.Message{models.NewAssistantMessage(InvokeFailureReply)},
		resolved:         ptr(false),
		needsEscalation:  ptr(true),
		escalationReason: ptr(models.EscalationInvocationFailed),
		lastRAGContext:   ptr(""),
	}
}

// runAgent invokes one agent under the invocation timeout and records
// the outcome in the circuit breaker.
func (s *Supervisor) runAgent(ctx context.Context, agentID string, state *models.SupervisorState) (*agent.Result, error) {
	entry, ok := s.registry.Get(agentID)
	if !ok {
		return nil, fmt.Errorf("agent not registered: %s", agentID)
	}

	invokeCtx := ctx
	if s.cfg.AgentInvocationTimeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, s.cfg.AgentInvocationTimeout)
		defer cancel()
	}

	result, err := entry.Runner.Invoke(invokeCtx, state)
	if s.useOps {
		if err != nil {
			s.breaker.RecordFailure(agentID)
		} else {
			s.breaker.RecordSuccess(agentID)
		}
	}
	return result, err
}

func resultDelta(agentID string, result *agent.Result) delta {
	d := delta{
		messages:        result.Messages,
		currentAgent:    ptr(agentID),
		resolved:        ptr(result.Resolved),
		lastRAGContext:  ptr(result.LastRAGContext),
		needsEscalation: ptr(result.NeedsEscalation),
	}
	if result.NeedsEscalation {
		d.escalationReason = ptr(models.EscalationAgentRequested)
	}
	return d
}

// aggregateNode gates the reply on faithfulness to the retrieved
// context. It only ever adds an escalation, never clears one.
func (s *Supervisor) aggregateNode(ctx context.Context, state *models.SupervisorState) delta {
	responseText := models.LastAssistantContent(state.Messages)
	if responseText == "" || s.scorer == nil {
		return delta{}
	}

	score := s.scorer.Score(ctx, responseText, state.LastRAGContext)
	if score < s.cfg.FaithfulnessThreshold {
		slog.Info("Reply failed the faithfulness gate",
			"session_id", state.SessionID, "score", score, "threshold", s.cfg.FaithfulnessThreshold)
		return delta{
			needsEscalation:  ptr(true),
			escalationReason: ptr(models.EscalationLowFaithfulness),
		}
	}
	return delta{}
}

// escalateNode notifies the HITL handler and appends the fixed
// escalation reply. Handler panics and errors are swallowed; the user
// always gets the reply.
func (s *Supervisor) escalateNode(ctx context.Context, state *models.SupervisorState) delta {
	reason := state.EscalationReason
	if reason == "" || reason == models.EscalationNone {
		reason = models.EscalationAgentRequested
	}

	ec := models.EscalationContext{
		SessionID:        state.SessionID,
		UserID:           state.UserID,
		Reason:           reason,
		LastUserMessage:  models.LastUserContent(state.Messages),
		LastAgentMessage: models.LastAssistantContent(state.Messages),
		Metadata:         state.Metadata,
	}
	s.notifyHITL(ctx, ec)

	return delta{
		messages:         []models.Message{models.NewAssistantMessage(EscalationReply)},
		escalationReason: ptr(reason),
	}
}

func (s *Supervisor) notifyHITL(ctx context.Context, ec models.EscalationContext) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("HITL handler panicked", "session_id", ec.SessionID, "panic", r)
		}
	}()
	if err := s.hitl.OnEscalate(ctx, ec); err != nil {
		slog.Error("HITL handler failed", "session_id", ec.SessionID, "error", err)
	}
}
