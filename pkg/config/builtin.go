package config

// BuiltinConfig holds the compiled-in agent, intent, and guardrail tables.
// User YAML (agents.yaml) is merged on top of these at load time.
type BuiltinConfig struct {
	Agents          map[string]AgentConfig
	IntentRules     []IntentRule
	IntentLabels    []string
	Guardrails      GuardrailConfig
	FallbackAgentID string
}

const (
	// DefaultAgentID is the routing default when no intent matches and the
	// failover target when an invocation fails.
	DefaultAgentID = "support"

	DefaultModelID = "gpt-4o-mini"
)

const (
	supportPersona = "You are a helpful support agent. Answer based on the context when possible. " +
		"Use the conversation history to understand the ongoing issue and avoid repeating yourself. " +
		"Use search_knowledge_base for FAQs and how-to questions. Use create_support_ticket when the user needs human follow-up. " +
		"If unsure, say so and suggest escalating to a human. Keep replies concise."

	billingPersona = "You are a billing support agent. Help with invoices, payments, refunds. " +
		"Use the conversation history to understand the ongoing issue (e.g. invoice ID, order ID mentioned earlier). " +
		"Use look_up_invoice when the user asks about an invoice. Use get_refund_status for refund inquiries. Use create_refund_request when the user wants a refund. " +
		"Answer based on context. For sensitive actions, advise contacting billing team."
)

// builtinConfig is the single source of built-in defaults.
var builtinConfig = BuiltinConfig{
	Agents: map[string]AgentConfig{
		"support": {
			AgentID:       "support",
			Capabilities:  []string{"general", "support", "faq", "help"},
			ModelID:       DefaultModelID,
			MaxConcurrent: 8,
			Persona:       supportPersona,
		},
		"billing": {
			AgentID:       "billing",
			Capabilities:  []string{"billing", "invoices", "payments", "refunds"},
			ModelID:       DefaultModelID,
			MaxConcurrent: 4,
			Persona:       billingPersona,
			RetrievalFilters: map[string]string{
				"category": "billing",
			},
		},
	},
	// Rules are evaluated in order; every matching rule contributes its id.
	IntentRules: []IntentRule{
		{Keywords: []string{"invoice", "bill", "payment", "refund", "billing"}, AgentID: "billing"},
		{Keywords: []string{"tech", "error", "bug", "install", "troubleshoot"}, AgentID: "tech"},
		{Keywords: []string{"human", "agent", "escalate", "speak to someone"}, AgentID: "escalation"},
	},
	// Fixed label order for the model-based classifier (support = index 0).
	IntentLabels: []string{"support", "billing", "tech", "escalation"},
	Guardrails: GuardrailConfig{
		Enabled: true,
		Blocklist: []string{
			"hack", "exploit", "ddos", "password crack", "credential steal",
			"ignore previous instructions", "disregard your instructions",
		},
		SensitivePatterns: []string{
			"internal api key", "secret token", "admin password",
		},
		MaxInputLen:  8000,
		MaxOutputLen: 4000,
	},
	FallbackAgentID: DefaultAgentID,
}

// GetBuiltinConfig returns the built-in configuration tables.
func GetBuiltinConfig() BuiltinConfig {
	return builtinConfig
}
