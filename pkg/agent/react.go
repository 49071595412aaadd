package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opsdesk/dispatch/pkg/models"
)

const reactFormatInstructions = `Use the following format:

Thought: your reasoning about what to do next
Action: the tool to use, one of the tools listed above
Action Input: the tool arguments as a JSON object
Observation: the tool result (provided by the system, never write this yourself)
... (Thought/Action/Action Input/Observation can repeat)
Thought: I now know the final answer
Final Answer: the final reply to the user`

// runReact is the alternative invocation loop: instead of native tool
// calls the LLM emits Thought/Action/Action Input text, the runner
// executes the named tool and feeds back an Observation line, until a
// Final Answer appears or the step bound is hit.
func (r *Runner) runReact(ctx context.Context, prompt []models.Message) (string, []models.Message, error) {
	msgs := make([]models.Message, len(prompt))
	copy(msgs, prompt)
	msgs[0].Content = r.reactSystemPrompt(msgs[0].Content)

	var loopHistory []models.Message

	for step := 0; step < r.reactMaxSteps; step++ {
		resp, err := r.llmClient.Chat(ctx, msgs, nil, r.llmOpts)
		if err != nil {
			return "", nil, err
		}

		parsed := parseReActResponse(resp.Content)
		if parsed.IsFinalAnswer {
			return parsed.FinalAnswer, loopHistory, nil
		}

		assistant := models.NewAssistantMessage(resp.Content)
		msgs = append(msgs, assistant)
		loopHistory = append(loopHistory, assistant)

		var observation string
		if parsed.HasAction {
			result := r.toolSet.Execute(ctx, models.ToolCall{
				Name:      parsed.Action,
				Arguments: normalizeActionInput(parsed.ActionInput),
			})
			toolMsg := models.NewToolMessage("", parsed.Action, result)
			loopHistory = append(loopHistory, toolMsg)
			observation = "Observation: " + result
		} else {
			slog.Debug("Malformed reasoning step, asking the model to retry",
				"agent", r.agentCfg.AgentID, "step", step)
			observation = "Observation: " + reactFormatFeedback(parsed)
		}
		msgs = append(msgs, models.NewUserMessage(observation))
	}

	// Step bound hit: fall back to the last reasoning text we saw.
	slog.Warn("Reasoning loop exhausted", "agent", r.agentCfg.AgentID, "max_steps", r.reactMaxSteps)
	return models.LastAssistantContent(loopHistory), loopHistory, nil
}

func (r *Runner) reactSystemPrompt(persona string) string {
	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\nYou have access to the following tools:\n")
	for _, def := range r.toolSet.Definitions() {
		fmt.Fprintf(&sb, "- %s: %s\n", def.Name, def.Description)
	}
	sb.WriteString("\n")
	sb.WriteString(reactFormatInstructions)
	return sb.String()
}

// normalizeActionInput turns the raw Action Input text into a JSON
// argument object. JSON objects pass through; scalars are wrapped so
// handlers still receive well-formed JSON.
func normalizeActionInput(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "{") && json.Valid([]byte(raw)) {
		return raw
	}
	wrapped, err := json.Marshal(map[string]string{"input": raw})
	if err != nil {
		return ""
	}
	return string(wrapped)
}

func reactFormatFeedback(parsed *parsedReAct) string {
	switch {
	case parsed.FoundActionInput && !parsed.FoundAction:
		return "FORMAT ERROR: your response has \"Action Input:\" but no \"Action:\". " +
			"Name the tool with \"Action:\" before its input."
	case parsed.FoundAction && !parsed.FoundActionInput:
		return "FORMAT ERROR: your response has \"Action:\" but no \"Action Input:\". " +
			"Follow every \"Action:\" with \"Action Input:\" (leave it empty for tools without parameters)."
	default:
		return "FORMAT ERROR: could not find an Action or a Final Answer. " +
			"Reply with \"Action:\" and \"Action Input:\" to use a tool, or \"Final Answer:\" to conclude."
	}
}
