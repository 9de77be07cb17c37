package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/beaconops/vigil/pkg/consent"
	"github.com/beaconops/vigil/pkg/token"
)

// scopePolicyFile is the YAML shape of a deployment scope policy:
//
//	max_ttl: 30m
//	allowed:
//	  scheduling:
//	    - calendar.read
//	    - calendar.write
type scopePolicyFile struct {
	MaxTTL  string              `yaml:"max_ttl"`
	Allowed map[string][]string `yaml:"allowed"`
}

// LoadScopePolicy reads a scope policy from a YAML file. An empty path
// returns the built-in default policy.
func LoadScopePolicy(path string) (consent.ScopePolicy, error) {
	if path == "" {
		return consent.DefaultScopePolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return consent.ScopePolicy{}, fmt.Errorf("failed to read scope policy: %w", err)
	}

	var file scopePolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return consent.ScopePolicy{}, fmt.Errorf("failed to parse scope policy: %w", err)
	}

	policy := consent.ScopePolicy{
		Allowed: make(map[token.AgentType][]string, len(file.Allowed)),
		MaxTTL:  consent.DefaultScopePolicy().MaxTTL,
	}
	for agentType, scopes := range file.Allowed {
		policy.Allowed[token.AgentType(agentType)] = scopes
	}
	if file.MaxTTL != "" {
		d, err := time.ParseDuration(file.MaxTTL)
		if err != nil {
			return consent.ScopePolicy{}, fmt.Errorf("invalid max_ttl %q: %w", file.MaxTTL, err)
		}
		policy.MaxTTL = d
	}
	return policy, nil
}
