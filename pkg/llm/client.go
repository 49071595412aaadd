// Package llm defines the chat-completion client used by agents and the
// supervisor planner, plus an OpenAI-compatible HTTP implementation.
package llm

import (
	"context"

	"github.com/opsdesk/dispatch/pkg/models"
)

// ToolDefinition describes a tool offered to the LLM.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any
}

// Options tunes a single chat call. Zero values fall back to the client's
// configured defaults.
type Options struct {
	Model       string
	Temperature float64
	TopP        float64
}

// Response is the LLM's reply to one chat call. ToolCalls is non-empty
// when the model requested tool execution instead of (or alongside)
// producing text.
type Response struct {
	Content   string
	ToolCalls []models.ToolCall
}

// Client is the consumed chat-completion interface.
type Client interface {
	// Chat sends the conversation and available tools, returning the
	// model's reply. Implementations must honor ctx cancellation.
	Chat(ctx context.Context, messages []models.Message, tools []ToolDefinition, opts Options) (*Response, error)
}
