package hitl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/opsdesk/dispatch/pkg/models"
	"github.com/opsdesk/dispatch/pkg/tools"
)

var ticketRefPattern = regexp.MustCompile(`TKT-\d+`)

// TicketHandler files a high-priority support ticket and records the
// session in an in-memory pending list so humans can pick it up through
// the HITL endpoints. Ticket creation failures are logged and swallowed:
// the pending record is kept either way.
type TicketHandler struct {
	ticketTools *tools.Set

	mu      sync.Mutex
	pending map[string]models.PendingEscalation

	now func() time.Time
}

func NewTicketHandler() *TicketHandler {
	return &TicketHandler{
		ticketTools: tools.NewSet(tools.SupportTools()),
		pending:     make(map[string]models.PendingEscalation),
		now:         time.Now,
	}
}

func (h *TicketHandler) OnEscalate(ctx context.Context, ec models.EscalationContext) error {
	subject := fmt.Sprintf("Escalation: session %s (%s)", ec.SessionID, ec.Reason)
	description := fmt.Sprintf("Session: %s\nUser: %s\nReason: %s\nLast user message: %s\nLast agent message: %s",
		ec.SessionID, ec.UserID, ec.Reason,
		orNone(ec.LastUserMessage), orNone(ec.LastAgentMessage))
	if len(ec.Metadata) > 0 {
		if meta, err := json.Marshal(ec.Metadata); err == nil {
			description += "\nMetadata: " + string(meta)
		}
	}

	ticketRef := h.createTicket(ctx, subject, description)

	h.mu.Lock()
	h.pending[ec.SessionID] = models.PendingEscalation{
		SessionID:       ec.SessionID,
		UserID:          ec.UserID,
		Reason:          ec.Reason,
		LastUserMessage: ec.LastUserMessage,
		TicketRef:       ticketRef,
		CreatedAt:       h.now(),
	}
	h.mu.Unlock()

	slog.Info("Escalation recorded for human pickup",
		"session_id", ec.SessionID, "reason", ec.Reason, "ticket_ref", ticketRef)
	return nil
}

func (h *TicketHandler) createTicket(ctx context.Context, subject, description string) string {
	args, err := json.Marshal(map[string]any{
		"subject":     subject,
		"description": description,
		"priority":    "high",
	})
	if err != nil {
		slog.Warn("Failed to encode ticket arguments", "error", err)
		return ""
	}
	result := h.ticketTools.Execute(ctx, models.ToolCall{
		Name:      "create_support_ticket",
		Arguments: string(args),
	})
	return ticketRefPattern.FindString(result)
}

// ListPending returns a snapshot of the pending escalations keyed by
// session ID.
func (h *TicketHandler) ListPending() map[string]models.PendingEscalation {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]models.PendingEscalation, len(h.pending))
	for sid, pe := range h.pending {
		out[sid] = pe
	}
	return out
}

// ClearPending removes a session from the pending list, reporting
// whether it was present.
func (h *TicketHandler) ClearPending(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.pending[sessionID]
	delete(h.pending, sessionID)
	return ok
}
