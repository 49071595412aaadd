// Package tools defines the named functions agents expose to the LLM:
// built-in billing and support tools plus tools discovered from an
// external tool server. Tool sets are built once at startup and immutable
// afterwards.
package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opsdesk/dispatch/pkg/llm"
	"github.com/opsdesk/dispatch/pkg/models"
)

// Handler executes one tool call. argsJSON is the raw JSON argument
// object supplied by the LLM.
type Handler func(ctx context.Context, argsJSON string) (string, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any
	Handler    Handler
}

// Set is an immutable name-to-handler table with stable ordering.
type Set struct {
	tools []Tool
	byName map[string]Tool
}

// NewSet builds a set from the given tools. Later duplicates of a name
// are dropped so earlier entries win.
func NewSet(tools []Tool) *Set {
	s := &Set{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, exists := s.byName[t.Name]; exists {
			slog.Warn("Dropping duplicate tool name", "tool", t.Name)
			continue
		}
		s.tools = append(s.tools, t)
		s.byName[t.Name] = t
	}
	return s
}

// Merge returns a new set with the receiver's tools followed by extra
// ones. Name conflicts resolve in favor of the receiver.
func (s *Set) Merge(extra []Tool) *Set {
	combined := make([]Tool, 0, len(s.tools)+len(extra))
	combined = append(combined, s.tools...)
	combined = append(combined, extra...)
	return NewSet(combined)
}

// Definitions returns the set as LLM tool definitions, in order.
func (s *Set) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(s.tools))
	for _, t := range s.tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// Names returns the tool names in order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.tools))
	for _, t := range s.tools {
		names = append(names, t.Name)
	}
	return names
}

// Len returns the number of tools.
func (s *Set) Len() int {
	return len(s.tools)
}

// Execute runs a tool call, returning the result text. Unknown tools and
// handler failures are reported as result content rather than Go errors
// so the LLM can react to them.
func (s *Set) Execute(ctx context.Context, call models.ToolCall) string {
	tool, ok := s.byName[call.Name]
	if !ok {
		return fmt.Sprintf("Unknown tool: %s", call.Name)
	}
	result, err := tool.Handler(ctx, call.Arguments)
	if err != nil {
		return fmt.Sprintf("Tool %s failed: %s", call.Name, err)
	}
	return result
}
