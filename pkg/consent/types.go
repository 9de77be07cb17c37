package consent

import (
	"time"

	"github.com/beaconops/vigil/pkg/token"
)

// Status tracks the consent lifecycle. Transitions are forward-only:
// active -> expired (by time) or active -> revoked (by explicit call).
// A record is never reactivated.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Record is the durable record of a human's grant of specific scopes to a
// specific delegatee agent for a specific purpose.
type Record struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	DelegateeAgent string    `json:"delegatee_agent"`
	Scopes         []string  `json:"scopes"`
	Purpose        string    `json:"purpose"`
	GrantedAt      time.Time `json:"granted_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Status         Status    `json:"status"`
}

// Request asks for consent on behalf of a user.
type Request struct {
	UserID    string
	Delegator token.Principal
	Delegatee token.Principal
	Scopes    []string
	Purpose   string
	TTL       time.Duration
}

// Grant is the outcome of a consent request. The consent is recorded even
// when GrantedScopes is empty; callers must check emptiness, not just
// record presence. Credential is empty iff no scope was granted.
type Grant struct {
	Record     *Record
	Credential string
	Claims     *token.Claims
}

// Granted reports whether any scope was actually granted.
func (g *Grant) Granted() bool {
	return g.Record != nil && len(g.Record.Scopes) > 0
}
