package models

import "time"

// EscalationContext is the payload handed to a HITL handler when a turn
// escalates. Built by the supervisor's escalate node.
type EscalationContext struct {
	SessionID        string           `json:"session_id"`
	UserID           string           `json:"user_id"`
	Reason           EscalationReason `json:"reason"`
	LastUserMessage  string           `json:"last_user_message"`
	LastAgentMessage string           `json:"last_agent_message"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
}

// PendingEscalation is a ticket-handler record awaiting human pickup.
type PendingEscalation struct {
	SessionID       string           `json:"session_id"`
	UserID          string           `json:"user_id"`
	Reason          EscalationReason `json:"reason"`
	LastUserMessage string           `json:"last_user_message"`
	TicketRef       string           `json:"ticket_ref,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Turn is one conversation-store entry. Unlike SupervisorState.Messages
// the per-session turn list is unbounded.
type Turn struct {
	Role     Role           `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
