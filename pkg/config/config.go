// Package config loads process-wide configuration: environment options,
// built-in agent/guardrail tables, and optional YAML overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config is the immutable process-wide configuration, built once at startup.
type Config struct {
	// Pipeline thresholds and feature flags.
	FaithfulnessThreshold float64
	ConfidenceThreshold   float64
	PlanningEnabled       bool
	ReactEnabled          bool
	ReactMaxSteps         int
	MaxToolIters          int
	TopP                  float64

	// Agent ops: circuit breaker and failover.
	AgentOpsEnabled         bool
	CircuitFailureThreshold int
	CircuitCooldown         time.Duration
	FailoverEnabled         bool
	FallbackAgentID         string
	AgentInvocationTimeout  time.Duration

	// HITL.
	HITLEnabled bool
	HITLHandler string // stub | ticket | email
	HITLEmailTo string

	// Guardrails.
	Guardrails GuardrailConfig

	// Session and request budgets.
	MessagesMaxLen int
	SessionTTL     time.Duration
	RequestTimeout time.Duration
	LLMTimeout     time.Duration
	ToolTimeout    time.Duration

	// LLM backend (OpenAI-compatible).
	LLMBaseURL string
	LLMAPIKey  string
	ModelID    string

	// Intent / faithfulness model services.
	UseIntentModel          bool
	IntentModelURL          string
	UseFaithfulnessModel    bool
	FaithfulnessModelURL    string

	// Vector retrieval.
	WeaviateURL    string
	WeaviateAPIKey string
	WeaviateClass  string

	// External tool server. Empty URL disables MCP tool discovery.
	MCPServerURL string

	// Durable stores: memory | postgres.
	StoreBackend string

	// Registered agents (built-in merged with agents.yaml overrides)
	// and intent tables.
	Agents       map[string]AgentConfig
	IntentRules  []IntentRule
	IntentLabels []string
}

// AgentIDs returns the ids of all registered agents.
func (c *Config) AgentIDs() []string {
	ids := make([]string, 0, len(c.Agents))
	for id := range c.Agents {
		ids = append(ids, id)
	}
	return ids
}

// Initialize builds configuration from the environment plus an optional
// agents.yaml in configDir, then validates it.
func Initialize(configDir string) (*Config, error) {
	cfg := fromEnv()

	overrides, err := loadAgentOverrides(configDir)
	if err != nil {
		// agents.yaml is optional; only a present-but-broken file fails.
		if !errors.Is(err, ErrConfigNotFound) {
			return nil, fmt.Errorf("failed to load agent overrides: %w", err)
		}
		slog.Debug("No agents.yaml found, using built-in agents", "config_dir", configDir)
	}
	builtin := GetBuiltinConfig()
	cfg.Agents = mergeAgents(builtin.Agents, overrides)
	cfg.IntentRules = builtin.IntentRules
	cfg.IntentLabels = builtin.IntentLabels

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	slog.Info("Configuration initialized",
		"agents", len(cfg.Agents),
		"planning_enabled", cfg.PlanningEnabled,
		"react_enabled", cfg.ReactEnabled,
		"agent_ops_enabled", cfg.AgentOpsEnabled,
		"hitl_handler", cfg.HITLHandler,
		"store_backend", cfg.StoreBackend)

	return cfg, nil
}

func fromEnv() *Config {
	builtin := GetBuiltinConfig()
	gr := builtin.Guardrails
	gr.Enabled = envBool("GUARDRAILS_ENABLED", true)
	gr.MaxInputLen = envInt("MAX_INPUT_LEN", gr.MaxInputLen)
	gr.MaxOutputLen = envInt("MAX_OUTPUT_LEN", gr.MaxOutputLen)

	return &Config{
		FaithfulnessThreshold: envFloat("FAITHFULNESS_THRESHOLD", 0.8),
		ConfidenceThreshold:   envFloat("CONFIDENCE_THRESHOLD", 0.7),
		PlanningEnabled:       envBool("PLANNING_ENABLED", false),
		ReactEnabled:          envBool("REACT_ENABLED", false),
		ReactMaxSteps:         envInt("REACT_MAX_STEPS", 10),
		MaxToolIters:          envInt("MAX_TOOL_ITERS", 5),
		TopP:                  envFloat("TOP_P", 0.9),

		AgentOpsEnabled:         envBool("AGENT_OPS_ENABLED", true),
		CircuitFailureThreshold: envInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 3),
		CircuitCooldown:         envDuration("CIRCUIT_BREAKER_COOLDOWN_SECONDS", 60*time.Second),
		FailoverEnabled:         envBool("FAILOVER_ENABLED", true),
		FallbackAgentID:         envString("FAILOVER_FALLBACK_AGENT_ID", builtin.FallbackAgentID),
		AgentInvocationTimeout:  envDuration("AGENT_INVOCATION_TIMEOUT_SECONDS", 30*time.Second),

		HITLEnabled: envBool("HITL_ENABLED", true),
		HITLHandler: envString("HITL_HANDLER", "stub"),
		HITLEmailTo: envString("HITL_EMAIL_TO", ""),

		Guardrails: gr,

		MessagesMaxLen: envInt("MESSAGES_MAX_LEN", 20),
		SessionTTL:     envDuration("SESSION_TTL_SECONDS", 24*time.Hour),
		RequestTimeout: envDuration("REQUEST_TIMEOUT_SECONDS", 60*time.Second),
		LLMTimeout:     envDuration("LLM_TIMEOUT_SECONDS", 10*time.Second),
		ToolTimeout:    envDuration("TOOL_TIMEOUT_SECONDS", 10*time.Second),

		LLMBaseURL: envString("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  envString("LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
		ModelID:    envString("DEFAULT_MODEL", DefaultModelID),

		UseIntentModel:       envBool("USE_INTENT_MODEL", false),
		IntentModelURL:       envString("INTENT_MODEL_URL", ""),
		UseFaithfulnessModel: envBool("USE_FAITHFULNESS_MODEL", false),
		FaithfulnessModelURL: envString("FAITHFULNESS_MODEL_URL", ""),

		WeaviateURL:    envString("WEAVIATE_URL", ""),
		WeaviateAPIKey: envString("WEAVIATE_API_KEY", ""),
		WeaviateClass:  envString("WEAVIATE_INDEX", "RAGChunks"),

		MCPServerURL: envString("MCP_SERVER_URL", ""),

		StoreBackend: envString("STORE_BACKEND", "memory"),
	}
}

func (c *Config) validate() error {
	if c.FaithfulnessThreshold < 0 || c.FaithfulnessThreshold > 1 {
		return NewValidationError("config", "faithfulness_threshold", "", ErrInvalidValue)
	}
	if c.CircuitFailureThreshold < 1 {
		return NewValidationError("config", "circuit_breaker_failure_threshold", "", ErrInvalidValue)
	}
	if c.MaxToolIters < 1 || c.ReactMaxSteps < 1 {
		return NewValidationError("config", "iteration_limits", "", ErrInvalidValue)
	}
	switch c.HITLHandler {
	case "stub", "ticket", "email":
	default:
		return NewValidationError("config", "hitl_handler", c.HITLHandler, ErrInvalidValue)
	}
	switch c.StoreBackend {
	case "memory", "postgres":
	default:
		return NewValidationError("config", "store_backend", c.StoreBackend, ErrInvalidValue)
	}
	if len(c.Agents) == 0 {
		return NewValidationError("config", "agents", "", ErrMissingRequiredField)
	}
	if _, ok := c.Agents[c.FallbackAgentID]; !ok {
		return NewValidationError("config", "failover_fallback_agent_id", c.FallbackAgentID, ErrAgentNotFound)
	}
	for id, a := range c.Agents {
		if a.AgentID == "" {
			return NewValidationError("agent", id, "agent_id", ErrMissingRequiredField)
		}
		if a.MaxConcurrent < 1 {
			return NewValidationError("agent", id, "max_concurrent", ErrInvalidValue)
		}
	}
	if c.UseIntentModel && c.IntentModelURL == "" {
		return NewValidationError("config", "intent_model_url", "", ErrMissingRequiredField)
	}
	if c.UseFaithfulnessModel && c.FaithfulnessModelURL == "" {
		return NewValidationError("config", "faithfulness_model_url", "", ErrMissingRequiredField)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "true", "1", "yes", "TRUE", "True":
		return true
	default:
		return false
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("Invalid integer env value, using default", "key", key, "value", v, "default", def)
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		slog.Warn("Invalid float env value, using default", "key", key, "value", v, "default", def)
	}
	return def
}

// envDuration reads a seconds count (matching the *_SECONDS env names).
func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			return time.Duration(n * float64(time.Second))
		}
		slog.Warn("Invalid duration env value, using default", "key", key, "value", v, "default", def)
	}
	return def
}
