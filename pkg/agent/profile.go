package agent

import "strings"

// profile carries the per-agent canned replies and the substring
// heuristics that derive resolution flags from the final reply text.
// The flags feed the supervisor's aggregate step; they are deliberately
// crude and err toward escalation.
type profile struct {
	emptyReply  string
	rejectReply string
	heuristics  func(reply string) (resolved, needsEscalation bool)
}

var supportProfile = profile{
	emptyReply:  "I didn't receive a message. How can I help?",
	rejectReply: "I can only help with support questions. Please ask about our products, FAQ, or how to get assistance.",
	heuristics: func(reply string) (bool, bool) {
		lower := strings.ToLower(reply)
		resolved := !strings.Contains(lower, "unsure") && !strings.Contains(lower, "escalat")
		needsEscalation := strings.Contains(lower, "escalat") || strings.Contains(lower, "ticket")
		return resolved, needsEscalation
	},
}

var billingProfile = profile{
	emptyReply:  "I didn't receive a message. How can I help with billing?",
	rejectReply: "I can only help with billing, invoices, payments, and refunds. Please ask a billing-related question.",
	heuristics: func(reply string) (bool, bool) {
		lower := strings.ToLower(reply)
		resolved := !strings.Contains(lower, "contact")
		needsEscalation := strings.Contains(lower, "billing team") || strings.Contains(lower, "contact")
		return resolved, needsEscalation
	},
}

// profileFor selects the profile by agent ID. Agents without a dedicated
// profile behave like support.
func profileFor(agentID string) profile {
	if agentID == "billing" {
		return billingProfile
	}
	return supportProfile
}
