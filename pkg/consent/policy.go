package consent

import (
	"time"

	"github.com/beaconops/vigil/pkg/token"
)

// ScopePolicy is the fixed per-deployment allow-list: which scopes each
// agent type may ever be delegated, and the maximum consent lifetime.
type ScopePolicy struct {
	Allowed map[token.AgentType][]string
	MaxTTL  time.Duration
}

// DefaultScopePolicy returns the built-in policy for the
// detect/verify/schedule/notify pipeline.
func DefaultScopePolicy() ScopePolicy {
	return ScopePolicy{
		Allowed: map[token.AgentType][]string{
			token.AgentDetection:    {"incident.read", "alerts.analyze"},
			token.AgentVerification: {"content.read", "content.verify"},
			token.AgentScheduling:   {"calendar.read", "calendar.write"},
			token.AgentNotification: {"notify.send", "contacts.read"},
		},
		MaxTTL: 30 * time.Minute,
	}
}

// GrantableScopes intersects the requested scopes with the allow-list for
// the delegatee's agent type. Order of requested scopes is preserved.
func (p ScopePolicy) GrantableScopes(at token.AgentType, requested []string) []string {
	allowed := make(map[string]struct{}, len(p.Allowed[at]))
	for _, s := range p.Allowed[at] {
		allowed[s] = struct{}{}
	}

	granted := make([]string, 0, len(requested))
	for _, s := range requested {
		if _, ok := allowed[s]; ok {
			granted = append(granted, s)
		}
	}
	return granted
}
