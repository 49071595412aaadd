package agent

import (
	"regexp"
	"strings"
)

// parsedReAct is the structured form of one reasoning-loop response.
type parsedReAct struct {
	Thought     string
	Action      string
	ActionInput string
	FinalAnswer string

	HasAction     bool
	IsFinalAnswer bool

	FoundAction      bool
	FoundActionInput bool
}

// Sentence boundary followed by a header, for models that run sections
// together on one line.
var (
	midlineFinalAnswer = regexp.MustCompile(`[.!?][\x60\s*]*Final Answer:`)
	recoverActionRef   = regexp.MustCompile(`(?i)\bAction:\s*([\w\-]+)`)
)

// parseReActResponse parses a reasoning-loop LLM response. The parser is
// forgiving: it accepts headers anywhere at line starts, recovers an
// Action name referenced before an orphan Action Input, and prefers a
// tool call over a Final Answer when both appear (a real final answer
// has nothing after it).
func parseReActResponse(text string) *parsedReAct {
	parsed := &parsedReAct{}
	if strings.TrimSpace(text) == "" {
		return parsed
	}

	sections := map[string][]string{}
	current := ""

	for _, rawLine := range strings.Split(strings.TrimSpace(text), "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" && current == "" {
			continue
		}

		// The model must never write Observation lines; stop before any
		// hallucinated tool output.
		if strings.HasPrefix(line, "Observation:") {
			break
		}

		switch {
		case strings.HasPrefix(line, "Final Answer:"):
			current = "final_answer"
			sections[current] = append(sections[current], strings.TrimSpace(strings.TrimPrefix(line, "Final Answer:")))
		case strings.HasPrefix(line, "Action Input:"):
			current = "action_input"
			sections[current] = append(sections[current], strings.TrimSpace(strings.TrimPrefix(line, "Action Input:")))
		case strings.HasPrefix(line, "Action:"):
			current = "action"
			sections[current] = append(sections[current], strings.TrimSpace(strings.TrimPrefix(line, "Action:")))
		case strings.HasPrefix(line, "Thought:"), line == "Thought":
			current = "thought"
			content := strings.TrimSpace(strings.TrimPrefix(line, "Thought:"))
			if loc := midlineFinalAnswer.FindStringIndex(content); loc != nil {
				// "Thought: ... done. Final Answer: ..." on one line.
				sections["thought"] = append(sections["thought"], strings.TrimSpace(content[:loc[0]+1]))
				rest := content[loc[0]:]
				if idx := strings.Index(rest, "Final Answer:"); idx != -1 {
					current = "final_answer"
					sections[current] = append(sections[current], strings.TrimSpace(rest[idx+len("Final Answer:"):]))
				}
			} else if content != "" {
				sections[current] = append(sections[current], content)
			}
		default:
			if current != "" {
				sections[current] = append(sections[current], line)
			}
		}
	}

	parsed.Thought = joinSection(sections["thought"])
	parsed.Action = firstLine(joinSection(sections["action"]))
	parsed.ActionInput = joinSection(sections["action_input"])
	parsed.FinalAnswer = joinSection(sections["final_answer"])
	_, parsed.FoundAction = sections["action"]
	_, parsed.FoundActionInput = sections["action_input"]

	// Orphan Action Input: look back for an inline "Action: name" mention.
	if parsed.FoundActionInput && parsed.Action == "" {
		if m := recoverActionRef.FindStringSubmatch(text); m != nil {
			parsed.Action = m[1]
			parsed.FoundAction = true
		}
	}

	if parsed.Action != "" {
		parsed.HasAction = true
		return parsed
	}
	if parsed.FinalAnswer != "" {
		parsed.IsFinalAnswer = true
	}
	return parsed
}

func joinSection(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func firstLine(s string) string {
	return strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
}
