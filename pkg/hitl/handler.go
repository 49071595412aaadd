// Package hitl performs the human-facing side effect of an escalation:
// creating a ticket, notifying the support team, or nothing at all. The
// supervisor's escalate step calls the configured handler exactly once
// per escalated turn and never fails the turn on handler errors.
package hitl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opsdesk/dispatch/pkg/config"
	"github.com/opsdesk/dispatch/pkg/models"
)

// Handler reacts to an escalation. Implementations may create a support
// ticket, send email, or push to a human queue.
type Handler interface {
	OnEscalate(ctx context.Context, ec models.EscalationContext) error
}

// StubHandler does nothing. Used when HITL is disabled and in tests; the
// user still sees the escalation notice in the reply.
type StubHandler struct{}

func NewStubHandler() *StubHandler { return &StubHandler{} }

func (h *StubHandler) OnEscalate(_ context.Context, _ models.EscalationContext) error {
	return nil
}

// EmailHandler notifies the support team. Without a recipient configured
// it only logs, which is the development default.
type EmailHandler struct {
	emailTo string
}

func NewEmailHandler(emailTo string) *EmailHandler {
	return &EmailHandler{emailTo: emailTo}
}

func (h *EmailHandler) OnEscalate(_ context.Context, ec models.EscalationContext) error {
	body := fmt.Sprintf("Escalation: session=%s, user=%s, reason=%s\nLast user message: %s\nLast agent message: %s",
		ec.SessionID, ec.UserID, ec.Reason,
		orNone(ec.LastUserMessage), orNone(ec.LastAgentMessage))
	if h.emailTo != "" {
		// Production would send via SMTP or an email API.
		slog.Info("HITL email notification", "to", h.emailTo, "body", truncate(body, 200))
	} else {
		slog.Info("HITL escalation (no email recipient configured)", "body", truncate(body, 300))
	}
	return nil
}

// FromConfig selects the handler named by hitl_handler: stub, ticket or
// email. A disabled HITL always yields the stub.
func FromConfig(cfg *config.Config) Handler {
	if !cfg.HITLEnabled {
		return NewStubHandler()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.HITLHandler)) {
	case "ticket":
		return NewTicketHandler()
	case "email":
		return NewEmailHandler(cfg.HITLEmailTo)
	default:
		return NewStubHandler()
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Compile-time checks
var (
	_ Handler = (*StubHandler)(nil)
	_ Handler = (*EmailHandler)(nil)
	_ Handler = (*TicketHandler)(nil)
)
