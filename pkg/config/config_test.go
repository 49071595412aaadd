package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_Defaults(t *testing.T) {
	cfg, err := Initialize("")
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.FaithfulnessThreshold)
	assert.False(t, cfg.PlanningEnabled)
	assert.False(t, cfg.ReactEnabled)
	assert.True(t, cfg.AgentOpsEnabled)
	assert.Equal(t, 3, cfg.CircuitFailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.CircuitCooldown)
	assert.Equal(t, "support", cfg.FallbackAgentID)
	assert.Equal(t, 30*time.Second, cfg.AgentInvocationTimeout)
	assert.Equal(t, "stub", cfg.HITLHandler)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 20, cfg.MessagesMaxLen)
	assert.Equal(t, 10*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 10*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)

	// Built-in agent and intent tables are installed.
	require.Contains(t, cfg.Agents, "support")
	require.Contains(t, cfg.Agents, "billing")
	assert.NotEmpty(t, cfg.IntentRules)
	assert.Equal(t, []string{"support", "billing", "tech", "escalation"}, cfg.IntentLabels)
}

func TestInitialize_EnvOverrides(t *testing.T) {
	t.Setenv("FAITHFULNESS_THRESHOLD", "0.5")
	t.Setenv("PLANNING_ENABLED", "true")
	t.Setenv("CIRCUIT_BREAKER_COOLDOWN_SECONDS", "120")
	t.Setenv("HITL_HANDLER", "ticket")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("MESSAGES_MAX_LEN", "6")

	cfg, err := Initialize("")
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.FaithfulnessThreshold)
	assert.True(t, cfg.PlanningEnabled)
	assert.Equal(t, 120*time.Second, cfg.CircuitCooldown)
	assert.Equal(t, "ticket", cfg.HITLHandler)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 6, cfg.MessagesMaxLen)
}

func TestInitialize_InvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("MESSAGES_MAX_LEN", "not-a-number")
	t.Setenv("CIRCUIT_BREAKER_COOLDOWN_SECONDS", "-5")

	cfg, err := Initialize("")
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.MessagesMaxLen)
	assert.Equal(t, 60*time.Second, cfg.CircuitCooldown)
}

func TestInitialize_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"threshold out of range", "FAITHFULNESS_THRESHOLD", "1.5"},
		{"unknown hitl handler", "HITL_HANDLER", "pager"},
		{"unknown store backend", "STORE_BACKEND", "redis"},
		{"unregistered fallback agent", "FAILOVER_FALLBACK_AGENT_ID", "ghost"},
		{"intent model without url", "USE_INTENT_MODEL", "true"},
		{"faithfulness model without url", "USE_FAITHFULNESS_MODEL", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Initialize("")
			require.Error(t, err)

			var validErr *ValidationError
			assert.ErrorAs(t, err, &validErr)
		})
	}
}

func TestInitialize_AgentOverridesFromYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := `
agents:
  billing:
    model_id: gpt-4o
    max_concurrent: 16
  returns:
    agent_id: returns
    capabilities: [returns, exchanges]
    model_id: gpt-4o-mini
    max_concurrent: 2
    persona: "You handle product returns."
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents.yaml"), []byte(yaml), 0o644))

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	// Overridden fields win; untouched built-in fields survive.
	billing := cfg.Agents["billing"]
	assert.Equal(t, "gpt-4o", billing.ModelID)
	assert.Equal(t, 16, billing.MaxConcurrent)
	assert.Equal(t, "billing", billing.AgentID)
	assert.NotEmpty(t, billing.Persona)
	assert.Equal(t, "billing", billing.RetrievalFilters["category"])

	// New agents are added alongside the built-ins.
	returns := cfg.Agents["returns"]
	assert.Equal(t, "returns", returns.AgentID)
	assert.Equal(t, 2, returns.MaxConcurrent)
	require.Contains(t, cfg.Agents, "support")
}

func TestInitialize_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents.yaml"), []byte("agents: ["), 0o644))

	_, err := Initialize(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestInitialize_MissingYAMLIsOptional(t *testing.T) {
	cfg, err := Initialize(t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, cfg.Agents, "support")
}

func TestLoadAgentOverrides_MissingFile(t *testing.T) {
	_, err := loadAgentOverrides(t.TempDir())
	assert.ErrorIs(t, err, ErrConfigNotFound)

	_, err = loadAgentOverrides("")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestMergeAgents_NewAgentGetsIDFromKey(t *testing.T) {
	merged := mergeAgents(
		map[string]AgentConfig{},
		map[string]AgentConfig{"tech": {MaxConcurrent: 3}},
	)
	assert.Equal(t, "tech", merged["tech"].AgentID)
}

func TestAgentIDs(t *testing.T) {
	cfg := &Config{Agents: map[string]AgentConfig{
		"support": {}, "billing": {},
	}}
	assert.ElementsMatch(t, []string{"support", "billing"}, cfg.AgentIDs())
}
