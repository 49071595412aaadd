// Package registry holds the registered agents: their configuration and
// the runner that executes them. Built once at startup from config;
// read-only afterwards.
package registry

import (
	"sort"
	"strings"

	"github.com/opsdesk/dispatch/pkg/agent"
	"github.com/opsdesk/dispatch/pkg/config"
)

// Entry pairs an agent's configuration with its runner.
type Entry struct {
	Config config.AgentConfig
	Runner *agent.Runner
}

// Registry answers agent lookups for the supervisor's route step.
type Registry struct {
	entries  map[string]Entry
	ordered  []string
	fallback string
}

// New creates a registry. The fallback must be one of the registered
// agents; config validation guarantees that.
func New(fallbackAgentID string) *Registry {
	return &Registry{
		entries:  make(map[string]Entry),
		fallback: fallbackAgentID,
	}
}

// Register adds one agent. Registration order is preserved for IDs().
func (r *Registry) Register(cfg config.AgentConfig, runner *agent.Runner) {
	if _, exists := r.entries[cfg.AgentID]; !exists {
		r.ordered = append(r.ordered, cfg.AgentID)
	}
	r.entries[cfg.AgentID] = Entry{Config: cfg, Runner: runner}
}

// Get returns the agent's entry and whether it is registered.
func (r *Registry) Get(agentID string) (Entry, bool) {
	e, ok := r.entries[agentID]
	return e, ok
}

// IDs returns the registered agent IDs in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ordered...)
}

// FallbackAgentID is the failover target when routing finds no usable
// agent.
func (r *Registry) FallbackAgentID() string {
	return r.fallback
}

// ByCapability returns the IDs of agents advertising any of the given
// capabilities, sorted for determinism. Matching is case-insensitive.
func (r *Registry) ByCapability(capabilities []string) []string {
	want := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		want[strings.ToLower(c)] = true
	}

	var ids []string
	for id, e := range r.entries {
		for _, c := range e.Config.Capabilities {
			if want[strings.ToLower(c)] {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}
