// Package token mints and validates the short-lived scoped bearer
// credentials that authorize every agent call inside a workflow run.
// Credentials are compact JWS tokens (header.payload.signature); every
// validation verifies the HMAC signature and expiry.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Issuer is the iss claim stamped on every credential.
	Issuer = "vigil/authority"
	// Audience is the aud claim; credentials are for internal calls only.
	Audience = "vigil.internal"

	// MaxDirectTTL caps directly issued credentials.
	MaxDirectTTL = 60 * time.Minute
	// MaxDelegatedTTL caps (and defaults) consent-bound credentials.
	MaxDelegatedTTL = 30 * time.Minute

	// Wildcard grants every scope.
	Wildcard = "*"
)

var (
	// ErrAuthentication marks malformed, unsigned, or expired credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrAuthorization marks credentials that are valid but under-scoped.
	ErrAuthorization = errors.New("authorization failed")
)

// DelegationRecord binds a credential to a human consent. A credential
// carries at most one record; chains are reconstructed through the
// referenced consent, never by nesting.
type DelegationRecord struct {
	Delegator     string        `json:"delegator"`
	DelegatorType PrincipalType `json:"delegator_type,omitempty"`
	Delegatee     string        `json:"delegatee"`
	DelegateeType PrincipalType `json:"delegatee_type,omitempty"`
	ConsentID     string        `json:"consent_id"`
	GrantedAt     time.Time     `json:"granted_at"`
}

// Claims is the credential payload. Fields follow the wire contract:
// sub, iss, aud, scope (space-separated), iat, exp, jti required;
// agent_id, agent_type, user_id, delegation optional.
type Claims struct {
	jwt.RegisteredClaims
	Scope      string            `json:"scope"`
	AgentID    string            `json:"agent_id,omitempty"`
	AgentType  AgentType         `json:"agent_type,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	Delegation *DelegationRecord `json:"delegation,omitempty"`
}

// Scopes splits the space-separated scope claim.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// Service mints and validates credentials. The KeySet is injected at
// construction; lifecycle is owned by the process entry point.
type Service struct {
	keys  KeySet
	clock func() time.Time
}

// NewService creates a token service signing with the given key set.
func NewService(ks KeySet) *Service {
	return &Service{keys: ks, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Issue mints a directly scoped credential for a subject.
// Fails only on invalid input; ttl is capped at MaxDirectTTL.
func (s *Service) Issue(subject string, scopes []string, ttl time.Duration) (string, *Claims, error) {
	if subject == "" {
		return "", nil, fmt.Errorf("issue: subject is required")
	}
	if len(scopes) == 0 {
		return "", nil, fmt.Errorf("issue: at least one scope is required")
	}
	if ttl <= 0 {
		return "", nil, fmt.Errorf("issue: ttl must be positive, got %s", ttl)
	}
	if ttl > MaxDirectTTL {
		ttl = MaxDirectTTL
	}
	return s.sign(s.baseClaims(subject, scopes, ttl))
}

// IssueDelegated mints a credential for delegatee acting on behalf of
// userID under the authority delegated by delegator, bound to a consent.
// A zero ttl defaults to MaxDelegatedTTL; larger values are capped to it.
func (s *Service) IssueDelegated(delegator, delegatee Principal, userID string, scopes []string, consentID string, ttl time.Duration) (string, *Claims, error) {
	if delegator.ID == "" || delegatee.ID == "" {
		return "", nil, fmt.Errorf("issue delegated: delegator and delegatee are required")
	}
	if consentID == "" {
		return "", nil, fmt.Errorf("issue delegated: consent id is required")
	}
	if len(scopes) == 0 {
		return "", nil, fmt.Errorf("issue delegated: at least one scope is required")
	}
	if ttl <= 0 || ttl > MaxDelegatedTTL {
		ttl = MaxDelegatedTTL
	}

	claims := s.baseClaims(delegatee.ID, scopes, ttl)
	claims.AgentID = delegatee.ID
	claims.AgentType = delegatee.AgentType
	claims.UserID = userID
	claims.Delegation = &DelegationRecord{
		Delegator:     delegator.ID,
		DelegatorType: delegator.Type,
		Delegatee:     delegatee.ID,
		DelegateeType: delegatee.Type,
		ConsentID:     consentID,
		GrantedAt:     s.clock().UTC(),
	}
	return s.sign(claims)
}

// Validate parses a raw credential, verifies its signature and expiry,
// and returns the claims. All failures wrap ErrAuthentication.
func (s *Service) Validate(raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty credential", ErrAuthentication)
	}

	claims := &Claims{}
	t, err := jwt.ParseWithClaims(raw, claims, s.keys.KeyFunc(), jwt.WithTimeFunc(s.clock))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if !t.Valid {
		return nil, fmt.Errorf("%w: invalid credential", ErrAuthentication)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: credential subject is required", ErrAuthentication)
	}
	if claims.Scope == "" {
		return nil, fmt.Errorf("%w: credential scope is required", ErrAuthentication)
	}
	return claims, nil
}

// VerifyScopes reports whether every required scope is present in
// granted. A wildcard in granted satisfies any requirement. Pure.
func VerifyScopes(required, granted []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		if g == Wildcard {
			return true
		}
		set[g] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}

func (s *Service) baseClaims(subject string, scopes []string, ttl time.Duration) *Claims {
	now := s.clock().UTC()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subject,
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope: strings.Join(scopes, " "),
	}
}

func (s *Service) sign(claims *Claims) (string, *Claims, error) {
	raw, err := s.keys.Sign(context.Background(), claims)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign credential: %w", err)
	}
	return raw, claims, nil
}
