package config

// AgentConfig describes one registered agent.
type AgentConfig struct {
	AgentID          string            `yaml:"agent_id"`
	Capabilities     []string          `yaml:"capabilities"`
	ModelID          string            `yaml:"model_id"`
	MaxConcurrent    int               `yaml:"max_concurrent"`
	Persona          string            `yaml:"persona"`
	RetrievalFilters map[string]string `yaml:"retrieval_filters"`
	ReactEnabled     *bool             `yaml:"react_enabled,omitempty"`
}

// IntentRule maps a keyword set to an agent id. Rules are evaluated in
// order; every matching rule contributes its agent id.
type IntentRule struct {
	Keywords []string `yaml:"keywords"`
	AgentID  string   `yaml:"agent_id"`
}

// TransportType identifies how an MCP tool server is reached.
type TransportType string

const (
	TransportTypeStdio TransportType = "stdio"
	TransportTypeHTTP  TransportType = "http"
)

// MCPServerConfig describes one external tool server.
type MCPServerConfig struct {
	Transport TransportType `yaml:"transport"`
	Command   string        `yaml:"command,omitempty"`
	Args      []string      `yaml:"args,omitempty"`
	URL       string        `yaml:"url,omitempty"`
}

// GuardrailConfig holds the guardrail service's pattern tables.
type GuardrailConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Blocklist         []string `yaml:"blocklist"`
	SensitivePatterns []string `yaml:"sensitive_patterns"`
	MaxInputLen       int      `yaml:"max_input_len"`
	MaxOutputLen      int      `yaml:"max_output_len"`
}
