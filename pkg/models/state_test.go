package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSupervisorState(t *testing.T) {
	s := NewSupervisorState("sess-1", "u1")

	assert.Equal(t, "sess-1", s.SessionID)
	assert.Equal(t, "u1", s.UserID)
	assert.Empty(t, s.Messages)
	assert.Equal(t, EscalationNone, s.EscalationReason)
}

func TestBeginTurn_ClearsTransientFields(t *testing.T) {
	s := NewSupervisorState("sess-1", "u1")
	s.Messages = []Message{NewUserMessage("hi"), NewAssistantMessage("hello")}
	s.PlannedAgentIDs = []string{"billing"}
	s.CurrentAgent = "billing"
	s.LastRAGContext = "ctx"
	s.NeedsEscalation = true
	s.EscalationReason = EscalationLowFaithfulness
	s.Resolved = true

	s.BeginTurn("where is my refund?", []string{"billing", "support"})

	require.Len(t, s.Messages, 3)
	assert.Equal(t, RoleUser, s.Messages[2].Role)
	assert.Equal(t, "where is my refund?", s.Messages[2].Content)
	assert.Equal(t, []string{"billing", "support"}, s.SuggestedAgentIDs)
	assert.Nil(t, s.PlannedAgentIDs)
	assert.Empty(t, s.CurrentAgent)
	assert.Empty(t, s.LastRAGContext)
	assert.False(t, s.NeedsEscalation)
	assert.Equal(t, EscalationNone, s.EscalationReason)
	// Resolved carries over until the next invoke outcome.
	assert.True(t, s.Resolved)
}

func TestTruncateMessages(t *testing.T) {
	s := NewSupervisorState("sess-1", "u1")
	for i := 0; i < 6; i++ {
		s.Messages = append(s.Messages, NewUserMessage("m"))
	}

	s.TruncateMessages(4)
	assert.Len(t, s.Messages, 4)

	s.TruncateMessages(0)
	assert.Len(t, s.Messages, 4, "zero max disables truncation")
}

func TestClone_IsolatedFromOriginal(t *testing.T) {
	s := NewSupervisorState("sess-1", "u1")
	s.Messages = []Message{NewUserMessage("hi")}
	s.SuggestedAgentIDs = []string{"support"}
	s.Metadata = map[string]any{"plan": "pro"}

	c := s.Clone()
	c.Messages[0].Content = "changed"
	c.Messages = append(c.Messages, NewAssistantMessage("reply"))
	c.SuggestedAgentIDs[0] = "billing"
	c.Metadata["plan"] = "free"

	assert.Equal(t, "hi", s.Messages[0].Content)
	assert.Len(t, s.Messages, 1)
	assert.Equal(t, "support", s.SuggestedAgentIDs[0])
	assert.Equal(t, "pro", s.Metadata["plan"])
}

func TestLastContentHelpers(t *testing.T) {
	messages := []Message{
		NewUserMessage("first question"),
		NewAssistantMessage("first answer"),
		NewToolMessage("call-1", "search_knowledge_base", "result"),
		NewUserMessage("second question"),
	}

	assert.Equal(t, "second question", LastUserContent(messages))
	assert.Equal(t, "first answer", LastAssistantContent(messages))
	assert.Empty(t, LastUserContent(nil))
	assert.Empty(t, LastAssistantContent([]Message{NewUserMessage("hi")}))
}

func TestNewToolMessage(t *testing.T) {
	m := NewToolMessage("call-1", "check_invoice", "paid")

	assert.Equal(t, RoleTool, m.Role)
	assert.Equal(t, "call-1", m.ToolCallID)
	assert.Equal(t, "check_invoice", m.ToolName)
	assert.Equal(t, "paid", m.Content)
}
