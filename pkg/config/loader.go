package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// agentsYAMLConfig represents the optional agents.yaml file structure.
type agentsYAMLConfig struct {
	Agents map[string]AgentConfig `yaml:"agents"`
}

// loadAgentOverrides reads agents.yaml from configDir. A missing file
// surfaces as ErrConfigNotFound; the caller decides whether the file is
// optional.
func loadAgentOverrides(configDir string) (map[string]AgentConfig, error) {
	if configDir == "" {
		return nil, NewLoadError("agents.yaml", ErrConfigNotFound)
	}
	path := filepath.Join(configDir, "agents.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError("agents.yaml", ErrConfigNotFound)
		}
		return nil, NewLoadError("agents.yaml", err)
	}

	var parsed agentsYAMLConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, NewLoadError("agents.yaml", fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return parsed.Agents, nil
}

// mergeAgents merges user-defined agents over built-ins. For agents present
// in both, non-zero user fields override the built-in values.
func mergeAgents(builtin, user map[string]AgentConfig) map[string]AgentConfig {
	merged := make(map[string]AgentConfig, len(builtin)+len(user))
	for id, a := range builtin {
		merged[id] = a
	}
	for id, userAgent := range user {
		base, exists := merged[id]
		if !exists {
			if userAgent.AgentID == "" {
				userAgent.AgentID = id
			}
			merged[id] = userAgent
			continue
		}
		if err := mergo.Merge(&base, userAgent, mergo.WithOverride); err != nil {
			// Merge failures are programming errors (unexported fields etc.);
			// keep the built-in definition.
			continue
		}
		merged[id] = base
	}
	return merged
}
