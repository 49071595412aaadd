package models

// EscalationReason explains why a turn was escalated to a human.
type EscalationReason string

const (
	EscalationNone             EscalationReason = "none"
	EscalationLowFaithfulness  EscalationReason = "low_faithfulness"
	EscalationAgentRequested   EscalationReason = "agent_requested"
	EscalationInvocationFailed EscalationReason = "invocation_failed"
)

// SupervisorState is the single checkpointed entity per session.
// Messages is bounded (the checkpointer truncates to the configured
// maximum on save); the full transcript lives in the conversation store.
type SupervisorState struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Messages  []Message `json:"messages"`

	// Per-turn routing fields, cleared at the start of each turn.
	SuggestedAgentIDs []string `json:"suggested_agent_ids,omitempty"`
	PlannedAgentIDs   []string `json:"planned_agent_ids,omitempty"`
	CurrentAgent      string   `json:"current_agent,omitempty"`

	// Outcome of the most recent invoke in this turn.
	LastRAGContext   string           `json:"last_rag_context,omitempty"`
	NeedsEscalation  bool             `json:"needs_escalation"`
	EscalationReason EscalationReason `json:"escalation_reason"`
	Resolved         bool             `json:"resolved"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewSupervisorState creates an empty state for a session.
func NewSupervisorState(sessionID, userID string) *SupervisorState {
	return &SupervisorState{
		SessionID:        sessionID,
		UserID:           userID,
		EscalationReason: EscalationNone,
	}
}

// BeginTurn merges a new user turn into persisted state: appends the user
// message, installs this turn's routing suggestions, and clears all
// transient per-turn fields.
func (s *SupervisorState) BeginTurn(userMessage string, suggestedAgentIDs []string) {
	s.Messages = append(s.Messages, NewUserMessage(userMessage))
	s.SuggestedAgentIDs = suggestedAgentIDs
	s.PlannedAgentIDs = nil
	s.CurrentAgent = ""
	s.LastRAGContext = ""
	s.NeedsEscalation = false
	s.EscalationReason = EscalationNone
}

// TruncateMessages keeps only the last max messages.
func (s *SupervisorState) TruncateMessages(max int) {
	if max > 0 && len(s.Messages) > max {
		s.Messages = s.Messages[len(s.Messages)-max:]
	}
}

// Clone returns a deep copy of the state. The memory checkpointer
// stores and returns clones so callers never share slices or maps with
// the stored entry.
func (s *SupervisorState) Clone() *SupervisorState {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	c.SuggestedAgentIDs = append([]string(nil), s.SuggestedAgentIDs...)
	c.PlannedAgentIDs = append([]string(nil), s.PlannedAgentIDs...)
	if s.Metadata != nil {
		c.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
