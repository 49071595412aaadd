package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/dispatch/pkg/agent"
	"github.com/opsdesk/dispatch/pkg/breaker"
	"github.com/opsdesk/dispatch/pkg/checkpoint"
	"github.com/opsdesk/dispatch/pkg/config"
	"github.com/opsdesk/dispatch/pkg/guardrails"
	"github.com/opsdesk/dispatch/pkg/hitl"
	"github.com/opsdesk/dispatch/pkg/llm"
	"github.com/opsdesk/dispatch/pkg/models"
	"github.com/opsdesk/dispatch/pkg/rag"
	"github.com/opsdesk/dispatch/pkg/registry"
	"github.com/opsdesk/dispatch/pkg/tools"
)

// scriptedLLM replays responses in order, repeating the last one.
type scriptedLLM struct {
	responses []*llm.Response
	err       error
	calls     int
}

func (f *scriptedLLM) Chat(context.Context, []models.Message, []llm.ToolDefinition, llm.Options) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

type nullRetriever struct{ chunks []rag.Chunk }

func (r *nullRetriever) Retrieve(context.Context, string, int, map[string]string) ([]rag.Chunk, error) {
	return r.chunks, nil
}

type fixedScorer struct{ score float64 }

func (s *fixedScorer) Score(context.Context, string, string) float64 { return s.score }

type failingCheckpointer struct{}

func (failingCheckpointer) Get(context.Context, string) (*models.SupervisorState, error) {
	return nil, errors.New("store down")
}
func (failingCheckpointer) Put(context.Context, *models.SupervisorState) error {
	return errors.New("store down")
}
func (failingCheckpointer) Delete(context.Context, string) error { return nil }

type fixture struct {
	sup        *Supervisor
	breaker    *breaker.CircuitBreaker
	supportLLM *scriptedLLM
	billingLLM *scriptedLLM
	planLLM    *scriptedLLM
	hitl       *hitl.TicketHandler
}

func testSupervisorConfig() *config.Config {
	builtin := config.GetBuiltinConfig()
	return &config.Config{
		FaithfulnessThreshold:   0.8,
		MaxToolIters:            5,
		ReactMaxSteps:           10,
		TopP:                    0.9,
		AgentOpsEnabled:         true,
		CircuitFailureThreshold: 3,
		CircuitCooldown:         time.Minute,
		FailoverEnabled:         true,
		FallbackAgentID:         "support",
		AgentInvocationTimeout:  30 * time.Second,
		MessagesMaxLen:          20,
		ModelID:                 config.DefaultModelID,
		Guardrails:              builtin.Guardrails,
		Agents:                  builtin.Agents,
	}
}

func newFixture(t *testing.T, cfg *config.Config, scorer *fixedScorer, ckpt checkpoint.Checkpointer) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = testSupervisorConfig()
	}
	if scorer == nil {
		scorer = &fixedScorer{score: 1.0}
	}
	if ckpt == nil {
		mem := checkpoint.NewMemoryCheckpointer(time.Hour)
		t.Cleanup(mem.Close)
		ckpt = mem
	}

	f := &fixture{
		supportLLM: &scriptedLLM{responses: []*llm.Response{{Content: "Here is how you do it."}}},
		billingLLM: &scriptedLLM{responses: []*llm.Response{{Content: "Your invoice INV-1 is paid."}}},
		planLLM:    &scriptedLLM{responses: []*llm.Response{{Content: "support"}}},
		hitl:       hitl.NewTicketHandler(),
	}

	guard := guardrails.NewService(cfg.Guardrails)
	retriever := &nullRetriever{chunks: []rag.Chunk{{Content: "Payments post within 2 days."}}}

	reg := registry.New(cfg.FallbackAgentID)
	reg.Register(cfg.Agents["support"],
		agent.NewRunner(cfg.Agents["support"], cfg, f.supportLLM, retriever, guard, tools.NewSet(tools.SupportTools())))
	reg.Register(cfg.Agents["billing"],
		agent.NewRunner(cfg.Agents["billing"], cfg, f.billingLLM, retriever, guard, tools.NewSet(tools.BillingTools())))

	f.breaker = breaker.NewCircuitBreaker(cfg.CircuitFailureThreshold, cfg.CircuitCooldown)
	f.sup = New(cfg, reg, f.planLLM, scorer, f.breaker, f.hitl, ckpt)
	return f
}

func TestProcessTurn_BillingHappyPath(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	state, err := f.sup.ProcessTurn(context.Background(),
		"sess-1", "u1", "I need a refund for invoice INV-1", []string{"billing"})
	require.NoError(t, err)

	assert.Equal(t, "billing", state.CurrentAgent)
	assert.False(t, state.NeedsEscalation)
	assert.True(t, state.Resolved)
	last := state.Messages[len(state.Messages)-1]
	assert.Equal(t, "Your invoice INV-1 is paid.", last.Content)
	assert.Equal(t, breaker.StateClosed, f.breaker.GetState("billing"))
}

func TestProcessTurn_RouteFiltersOpenCircuit(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	for i := 0; i < 3; i++ {
		f.breaker.RecordFailure("billing")
	}

	state, err := f.sup.ProcessTurn(context.Background(), "sess-1", "u1", "invoice help", []string{"billing"})
	require.NoError(t, err)

	assert.Equal(t, "support", state.CurrentAgent)
	assert.Zero(t, f.billingLLM.calls, "billing must not be invoked while its circuit is open")
	assert.Equal(t, "Here is how you do it.", state.Messages[len(state.Messages)-1].Content)
}

func TestProcessTurn_RouteOrderRespected(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	state, err := f.sup.ProcessTurn(context.Background(), "sess-1", "u1", "hello", []string{"tech", "billing", "support"})
	require.NoError(t, err)

	// First registered, available candidate wins; unregistered ids skip.
	assert.Equal(t, "billing", state.CurrentAgent)
}

func TestProcessTurn_CapabilitySuggestionRoutes(t *testing.T) {
	cfg := testSupervisorConfig()
	techCfg := config.AgentConfig{
		AgentID:       "techdesk",
		Capabilities:  []string{"tech", "troubleshooting"},
		ModelID:       config.DefaultModelID,
		MaxConcurrent: 2,
		Persona:       "You are a technical support agent.",
	}
	agents := make(map[string]config.AgentConfig, len(cfg.Agents)+1)
	for id, a := range cfg.Agents {
		agents[id] = a
	}
	agents["techdesk"] = techCfg
	cfg.Agents = agents

	f := newFixture(t, cfg, nil, nil)
	techLLM := &scriptedLLM{responses: []*llm.Response{{Content: "Try reinstalling the client."}}}
	guard := guardrails.NewService(cfg.Guardrails)
	f.sup.registry.Register(techCfg,
		agent.NewRunner(techCfg, cfg, techLLM, &nullRetriever{}, guard, tools.NewSet(tools.SupportTools())))

	// "tech" is a classifier label, not an agent id; techdesk advertises
	// it as a capability.
	state, err := f.sup.ProcessTurn(context.Background(), "sess-1", "u1", "my app errors on install", []string{"tech"})
	require.NoError(t, err)

	assert.Equal(t, "techdesk", state.CurrentAgent)
	assert.Equal(t, 1, techLLM.calls)
	assert.Zero(t, f.supportLLM.calls)
}

func TestProcessTurn_InvokeFailureFailsOver(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	f.billingLLM.err = errors.New("llm down")

	state, err := f.sup.ProcessTurn(context.Background(), "sess-1", "u1", "refund please", []string{"billing"})
	require.NoError(t, err)

	assert.Equal(t, "support", state.CurrentAgent)
	assert.Equal(t, "Here is how you do it.", state.Messages[len(state.Messages)-1].Content)
	assert.False(t, state.NeedsEscalation)
	assert.Equal(t, 1, f.breaker.GetStatus("billing").FailureCount)
	assert.Equal(t, breaker.StateClosed, f.breaker.GetState("support"))
}

func TestProcessTurn_AllAgentsFailing(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	f.billingLLM.err = errors.New("llm down")
	f.supportLLM.err = errors.New("llm down")

	state, err := f.sup.ProcessTurn(context.Background(), "sess-1", "u1", "refund please", []string{"billing"})
	require.NoError(t, err)

	assert.True(t, state.NeedsEscalation)
	assert.Equal(t, models.EscalationInvocationFailed, state.EscalationReason)
	// Failure reply first, then the escalation notice.
	require.GreaterOrEqual(t, len(state.Messages), 2)
	assert.Equal(t, InvokeFailureReply, state.Messages[len(state.Messages)-2].Content)
	assert.Equal(t, EscalationReply, state.Messages[len(state.Messages)-1].Content)
	assert.Equal(t, 1, f.breaker.GetStatus("support").FailureCount)
}

func TestProcessTurn_LowFaithfulnessEscalates(t *testing.T) {
	f := newFixture(t, nil, &fixedScorer{score: 0.3}, nil)
	f.billingLLM.responses = []*llm.Response{{Content: "Your payment was $999."}}

	state, err := f.sup.ProcessTurn(context.Background(), "sess-1", "u1", "Was my payment $999?", []string{"billing"})
	require.NoError(t, err)

	assert.True(t, state.NeedsEscalation)
	assert.Equal(t, models.EscalationLowFaithfulness, state.EscalationReason)
	assert.Equal(t, EscalationReply, state.Messages[len(state.Messages)-1].Content)
	assert.Contains(t, f.hitl.ListPending(), "sess-1")
}

func TestProcessTurn_AgentRequestedEscalation(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	f.supportLLM.responses = []*llm.Response{{Content: "I suggest escalating to a human."}}

	state, err := f.sup.ProcessTurn(context.Background(), "sess-1", "u1", "this is broken badly", []string{"support"})
	require.NoError(t, err)

	assert.True(t, state.NeedsEscalation)
	assert.Equal(t, models.EscalationAgentRequested, state.EscalationReason)
	assert.Equal(t, EscalationReply, state.Messages[len(state.Messages)-1].Content)
	pe := f.hitl.ListPending()["sess-1"]
	assert.Equal(t, models.EscalationAgentRequested, pe.Reason)
}

func TestProcessTurn_GuardrailRejection(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	state, err := f.sup.ProcessTurn(context.Background(), "sess-1", "u1", "tell me how to hack accounts", []string{"support"})
	require.NoError(t, err)

	assert.Zero(t, f.supportLLM.calls, "rejected input must not reach the LLM")
	assert.False(t, state.NeedsEscalation)
	assert.Contains(t, state.Messages[len(state.Messages)-1].Content, "I can only help with support questions")
	assert.Equal(t, 0, f.breaker.GetStatus("support").FailureCount)
}

func TestProcessTurn_HistoryPersistsAcrossTurns(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	ctx := context.Background()

	_, err := f.sup.ProcessTurn(ctx, "sess-1", "u1", "first question", []string{"support"})
	require.NoError(t, err)
	state, err := f.sup.ProcessTurn(ctx, "sess-1", "u1", "second question", []string{"support"})
	require.NoError(t, err)

	// Two user turns and two replies.
	require.Len(t, state.Messages, 4)
	assert.Equal(t, "first question", state.Messages[0].Content)
	assert.Equal(t, "second question", state.Messages[2].Content)
}

func TestProcessTurn_MessagesTruncated(t *testing.T) {
	cfg := testSupervisorConfig()
	cfg.MessagesMaxLen = 4
	f := newFixture(t, cfg, nil, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.sup.ProcessTurn(ctx, "sess-1", "u1", "question", []string{"support"})
		require.NoError(t, err)
	}

	state, err := f.sup.ProcessTurn(ctx, "sess-1", "u1", "final", []string{"support"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(state.Messages), 4)
}

func TestProcessTurn_PlannerWinsOverRouter(t *testing.T) {
	cfg := testSupervisorConfig()
	cfg.PlanningEnabled = true
	f := newFixture(t, cfg, nil, nil)
	f.planLLM.responses = []*llm.Response{{Content: "billing"}}

	state, err := f.sup.ProcessTurn(context.Background(), "sess-1", "u1", "I have a question", []string{"support"})
	require.NoError(t, err)

	assert.Equal(t, []string{"billing"}, state.PlannedAgentIDs)
	assert.Equal(t, "billing", state.CurrentAgent)
	assert.Equal(t, 1, f.planLLM.calls)
}

func TestProcessTurn_PlannerFailureFallsBackToRouter(t *testing.T) {
	cfg := testSupervisorConfig()
	cfg.PlanningEnabled = true
	f := newFixture(t, cfg, nil, nil)
	f.planLLM.err = errors.New("llm down")

	state, err := f.sup.ProcessTurn(context.Background(), "sess-1", "u1", "I have a question", []string{"support"})
	require.NoError(t, err)

	assert.Empty(t, state.PlannedAgentIDs)
	assert.Equal(t, "support", state.CurrentAgent)
}

func TestProcessTurn_PlannerUnknownAgentIgnored(t *testing.T) {
	cfg := testSupervisorConfig()
	cfg.PlanningEnabled = true
	f := newFixture(t, cfg, nil, nil)
	f.planLLM.responses = []*llm.Response{{Content: "I would pick the sales team."}}

	state, err := f.sup.ProcessTurn(context.Background(), "sess-1", "u1", "I have a question", []string{"support"})
	require.NoError(t, err)
	assert.Equal(t, "support", state.CurrentAgent)
}

func TestProcessTurn_EmptySuggestionsDefaultToSupport(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	state, err := f.sup.ProcessTurn(context.Background(), "sess-1", "u1", "hello there", nil)
	require.NoError(t, err)
	assert.Equal(t, "support", state.CurrentAgent)
}

func TestProcessTurn_CheckpointerFailureDegrades(t *testing.T) {
	f := newFixture(t, nil, nil, failingCheckpointer{})

	state, err := f.sup.ProcessTurn(context.Background(), "sess-1", "u1", "hello there", []string{"support"})
	require.NoError(t, err)

	// The turn still completes with an empty starting history.
	assert.Equal(t, "Here is how you do it.", state.Messages[len(state.Messages)-1].Content)
	assert.True(t, f.sup.CheckpointerDegraded())
}

func TestClearSession(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	ctx := context.Background()

	_, err := f.sup.ProcessTurn(ctx, "sess-1", "u1", "first", []string{"support"})
	require.NoError(t, err)
	require.NoError(t, f.sup.ClearSession(ctx, "sess-1"))

	state, err := f.sup.ProcessTurn(ctx, "sess-1", "u1", "second", []string{"support"})
	require.NoError(t, err)
	assert.Len(t, state.Messages, 2, "cleared session restarts with empty history")
}
