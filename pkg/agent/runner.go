// Package agent implements the per-agent invocation loop: guardrails,
// retrieval, prompt assembly, the LLM tool-calling (or ReAct) loop, and
// the resolution heuristics whose flags drive supervisor aggregation.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opsdesk/dispatch/pkg/config"
	"github.com/opsdesk/dispatch/pkg/guardrails"
	"github.com/opsdesk/dispatch/pkg/llm"
	"github.com/opsdesk/dispatch/pkg/models"
	"github.com/opsdesk/dispatch/pkg/rag"
	"github.com/opsdesk/dispatch/pkg/tools"
)

const (
	// RetrievalTopK is the number of document chunks pulled per query.
	RetrievalTopK = 3

	// HistoryMaxTurns bounds the role-prefixed history block in the prompt.
	HistoryMaxTurns = 10
)

// Result is the state delta an agent hands back to the supervisor.
// Messages holds the assistant/tool messages this turn produced, ending
// with the final assistant reply.
type Result struct {
	Messages        []models.Message
	Resolved        bool
	NeedsEscalation bool
	LastRAGContext  string
}

// Runner executes one agent. Construction wires the agent's persona,
// tool set and retrieval filters; Invoke is safe for concurrent use.
type Runner struct {
	agentCfg config.AgentConfig
	prof     profile

	llmClient llm.Client
	retriever rag.Retriever
	guard     *guardrails.Service
	toolSet   *tools.Set

	llmOpts       llm.Options
	maxToolIters  int
	reactEnabled  bool
	reactMaxSteps int
}

// NewRunner builds a runner for one registered agent. The per-agent
// react_enabled override wins over the global setting when present.
func NewRunner(
	agentCfg config.AgentConfig,
	cfg *config.Config,
	llmClient llm.Client,
	retriever rag.Retriever,
	guard *guardrails.Service,
	toolSet *tools.Set,
) *Runner {
	reactEnabled := cfg.ReactEnabled
	if agentCfg.ReactEnabled != nil {
		reactEnabled = *agentCfg.ReactEnabled
	}
	model := agentCfg.ModelID
	if model == "" {
		model = cfg.ModelID
	}
	return &Runner{
		agentCfg:  agentCfg,
		prof:      profileFor(agentCfg.AgentID),
		llmClient: llmClient,
		retriever: retriever,
		guard:     guard,
		toolSet:   toolSet,
		llmOpts: llm.Options{
			Model:       model,
			Temperature: 0,
			TopP:        cfg.TopP,
		},
		maxToolIters:  cfg.MaxToolIters,
		reactEnabled:  reactEnabled,
		reactMaxSteps: cfg.ReactMaxSteps,
	}
}

// AgentID returns the agent this runner executes.
func (r *Runner) AgentID() string { return r.agentCfg.AgentID }

// Invoke runs one turn. The returned error means the LLM backend failed;
// guardrail rejections and empty queries are normal results, not errors.
func (r *Runner) Invoke(ctx context.Context, state *models.SupervisorState) (*Result, error) {
	query := models.LastUserContent(state.Messages)
	if query == "" {
		return &Result{
			Messages: []models.Message{models.NewAssistantMessage(r.prof.emptyReply)},
		}, nil
	}

	if in := r.guard.GuardInput(query); !in.Passed {
		slog.Info("Input rejected by guardrails",
			"agent", r.agentCfg.AgentID, "reason", in.Reason)
		return &Result{
			Messages: []models.Message{models.NewAssistantMessage(r.prof.rejectReply)},
		}, nil
	}

	docContext := r.retrieveContext(ctx, query)
	historyContext := rag.FormatHistory(state.Messages, HistoryMaxTurns)
	prompt := r.buildPrompt(query, historyContext, docContext)

	var (
		reply       string
		loopHistory []models.Message
		err         error
	)
	if r.reactEnabled {
		reply, loopHistory, err = r.runReact(ctx, prompt)
	} else {
		reply, loopHistory, err = r.runToolLoop(ctx, prompt)
	}
	if err != nil {
		return nil, fmt.Errorf("agent %s invocation failed: %w", r.agentCfg.AgentID, err)
	}

	reply = r.guard.GuardOutput(reply).FilteredText
	resolved, needsEscalation := r.prof.heuristics(reply)

	return &Result{
		Messages:        append(loopHistory, models.NewAssistantMessage(reply)),
		Resolved:        resolved,
		NeedsEscalation: needsEscalation,
		LastRAGContext:  docContext,
	}, nil
}

// retrieveContext pulls document chunks for the query. Retrieval
// failures degrade to an empty context rather than failing the turn.
func (r *Runner) retrieveContext(ctx context.Context, query string) string {
	chunks, err := r.retriever.Retrieve(ctx, query, RetrievalTopK, r.agentCfg.RetrievalFilters)
	if err != nil {
		slog.Warn("Retrieval failed, continuing without document context",
			"agent", r.agentCfg.AgentID, "error", err)
		return ""
	}
	return rag.JoinChunks(chunks)
}

func (r *Runner) buildPrompt(query, historyContext, docContext string) []models.Message {
	user := fmt.Sprintf(
		"Conversation history (for issue handling):\n%s\n\nDocument context:\n%s\n\nCurrent user message: %s",
		historyContext, docContext, query)
	return []models.Message{
		{Role: models.RoleSystem, Content: r.agentCfg.Persona},
		models.NewUserMessage(user),
	}
}

// runToolLoop alternates LLM calls and tool executions until the LLM
// replies without tool calls or the iteration bound is hit. Returns the
// final reply text and the assistant/tool messages produced on the way.
func (r *Runner) runToolLoop(ctx context.Context, prompt []models.Message) (string, []models.Message, error) {
	var loopHistory []models.Message
	msgs := prompt

	for iter := 0; iter < r.maxToolIters; iter++ {
		resp, err := r.llmClient.Chat(ctx, msgs, r.toolSet.Definitions(), r.llmOpts)
		if err != nil {
			return "", nil, err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, loopHistory, nil
		}

		assistant := models.Message{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		msgs = append(msgs, assistant)
		loopHistory = append(loopHistory, assistant)

		for _, call := range resp.ToolCalls {
			result := r.toolSet.Execute(ctx, call)
			toolMsg := models.NewToolMessage(call.ID, call.Name, result)
			msgs = append(msgs, toolMsg)
			loopHistory = append(loopHistory, toolMsg)
		}
	}

	// Iteration bound hit: best-effort answer from the last assistant
	// content the loop saw.
	slog.Warn("Tool loop exhausted", "agent", r.agentCfg.AgentID, "max_iters", r.maxToolIters)
	return models.LastAssistantContent(loopHistory), loopHistory, nil
}
