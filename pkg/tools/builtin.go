package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// Built-in tools are stubs: production deployments would call the billing
// and ticketing APIs here.

func parseArgs(argsJSON string, target any) error {
	if argsJSON == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(argsJSON), target); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}

// refNumber derives a stable reference number from a seed string.
func refNumber(seed string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return h.Sum32() % 100000
}

func stringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// BillingTools returns the billing agent's built-in tools.
func BillingTools() []Tool {
	return []Tool{
		{
			Name:        "look_up_invoice",
			Description: "Look up an invoice by ID. Use when the user asks about a specific invoice, payment status, or invoice details.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"invoice_id": stringProperty("The invoice ID to look up."),
				},
				"required": []string{"invoice_id"},
			},
			Handler: lookUpInvoice,
		},
		{
			Name:        "get_refund_status",
			Description: "Get the status of a refund request. Use when the user asks about an existing refund.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"refund_id": stringProperty("The refund request ID."),
				},
				"required": []string{"refund_id"},
			},
			Handler: getRefundStatus,
		},
		{
			Name:        "create_refund_request",
			Description: "Create a refund request for an order. Use when the user wants to request a refund. Amount is optional (full refund if omitted).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"order_id":     stringProperty("The order ID to refund."),
					"reason":       stringProperty("Why the refund is requested."),
					"amount_cents": map[string]any{"type": "integer", "description": "Refund amount in cents. Omit for a full refund."},
				},
				"required": []string{"order_id", "reason"},
			},
			Handler: createRefundRequest,
		},
	}
}

// SupportTools returns the support agent's built-in tools.
func SupportTools() []Tool {
	return []Tool{
		{
			Name:        "search_knowledge_base",
			Description: "Search the support knowledge base for FAQs and help articles. Use when the user asks about products, policies, or how-to questions.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": stringProperty("The search query."),
				},
				"required": []string{"query"},
			},
			Handler: searchKnowledgeBase,
		},
		{
			Name:        "create_support_ticket",
			Description: "Create a support ticket for human follow-up. Use when the user needs escalation or the issue cannot be resolved by the bot.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"subject":     stringProperty("Short ticket subject."),
					"description": stringProperty("Full issue description."),
					"priority":    stringProperty("Ticket priority: low, normal, or high. Defaults to normal."),
				},
				"required": []string{"subject", "description"},
			},
			Handler: createSupportTicket,
		},
	}
}

func lookUpInvoice(_ context.Context, argsJSON string) (string, error) {
	var args struct {
		InvoiceID string `json:"invoice_id"`
	}
	if err := parseArgs(argsJSON, &args); err != nil {
		return "", err
	}
	return fmt.Sprintf("[Stub] Invoice %s: status=paid, amount=$150.00, due_date=2025-01-15. Contact billing team for disputes.", args.InvoiceID), nil
}

func getRefundStatus(_ context.Context, argsJSON string) (string, error) {
	var args struct {
		RefundID string `json:"refund_id"`
	}
	if err := parseArgs(argsJSON, &args); err != nil {
		return "", err
	}
	return fmt.Sprintf("[Stub] Refund %s: status=processing, expected 5-7 business days. Contact billing@example.com for details.", args.RefundID), nil
}

func createRefundRequest(_ context.Context, argsJSON string) (string, error) {
	var args struct {
		OrderID     string `json:"order_id"`
		Reason      string `json:"reason"`
		AmountCents *int   `json:"amount_cents"`
	}
	if err := parseArgs(argsJSON, &args); err != nil {
		return "", err
	}
	amount := "full"
	if args.AmountCents != nil {
		amount = fmt.Sprintf("$%.2f", float64(*args.AmountCents)/100)
	}
	return fmt.Sprintf("[Stub] Refund request created for order %s, %s refund. Reason: %s. Ref: REF-%d. Processing within 3-5 business days.",
		args.OrderID, amount, args.Reason, refNumber(args.OrderID)), nil
}

func searchKnowledgeBase(_ context.Context, argsJSON string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := parseArgs(argsJSON, &args); err != nil {
		return "", err
	}
	return fmt.Sprintf("[Stub KB] Found 2 articles for '%s': (1) Getting started guide, (2) Common troubleshooting. Suggest checking the docs or escalating if needed.", args.Query), nil
}

func createSupportTicket(_ context.Context, argsJSON string) (string, error) {
	var args struct {
		Subject     string `json:"subject"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
	}
	if err := parseArgs(argsJSON, &args); err != nil {
		return "", err
	}
	if args.Priority == "" {
		args.Priority = "normal"
	}
	return fmt.Sprintf("[Stub] Ticket created: subject='%s', priority=%s. Ref: TKT-%d. A human agent will follow up within 24 hours.",
		args.Subject, args.Priority, refNumber(args.Description)), nil
}
