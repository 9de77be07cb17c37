// Package delegation reconstructs and validates the delegation chain
// carried by a credential. It answers "is this credential well-formed and
// who does its authority trace back to"; whether the underlying consent
// is still live is checked by the orchestrator at point of use.
package delegation

import (
	"fmt"
	"time"

	"github.com/beaconops/vigil/pkg/token"
)

// Hop is one delegation edge in a chain.
type Hop struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Scopes    []string  `json:"scopes"`
	ConsentID string    `json:"consent_id"`
	GrantedAt time.Time `json:"granted_at"`
}

// Chain is the validated authority trail of a credential. Credentials
// without a delegation record yield a trivial one-node chain rooted at
// the credential subject.
type Chain struct {
	OriginalUser string `json:"original_user"`
	Delegations  []Hop  `json:"delegations"`
	Claims       *token.Claims
}

// Delegated reports whether the chain carries at least one hop.
func (c *Chain) Delegated() bool {
	return len(c.Delegations) > 0
}

// ConsentID returns the consent binding the first hop, or "".
func (c *Chain) ConsentID() string {
	if len(c.Delegations) == 0 {
		return ""
	}
	return c.Delegations[0].ConsentID
}

// Validator reconstructs delegation chains from credential claims.
type Validator struct {
	tokens *token.Service
}

// NewValidator creates a validator on top of the token service.
func NewValidator(tokens *token.Service) *Validator {
	return &Validator{tokens: tokens}
}

// ValidateChain validates the raw credential and returns its chain.
// Credentials are single-hop: at most one delegation record, resolved by
// consent id rather than by nesting records.
func (v *Validator) ValidateChain(raw string) (*Chain, error) {
	claims, err := v.tokens.Validate(raw)
	if err != nil {
		return nil, err
	}

	if claims.Delegation == nil {
		return &Chain{OriginalUser: claims.Subject, Claims: claims}, nil
	}

	d := claims.Delegation
	if d.Delegator == "" || d.Delegatee == "" || d.ConsentID == "" {
		return nil, fmt.Errorf("%w: incomplete delegation record", token.ErrAuthentication)
	}
	if d.Delegatee != claims.Subject {
		return nil, fmt.Errorf("%w: delegation delegatee %q does not match subject %q",
			token.ErrAuthentication, d.Delegatee, claims.Subject)
	}

	originalUser := claims.UserID
	if originalUser == "" {
		originalUser = d.Delegator
	}

	return &Chain{
		OriginalUser: originalUser,
		Delegations: []Hop{{
			From:      d.Delegator,
			To:        d.Delegatee,
			Scopes:    claims.Scopes(),
			ConsentID: d.ConsentID,
			GrantedAt: d.GrantedAt,
		}},
		Claims: claims,
	}, nil
}
