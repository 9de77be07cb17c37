// Package consent records and evaluates human consent for delegated agent
// actions. Records move forward only (active to expired or revoked) and
// expiry is lazy: liveness checks compare against the clock, revocation is
// an explicit compare-and-swap on status.
package consent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/beaconops/vigil/pkg/token"
)

// Manager handles the consent lifecycle for (user, delegatee, scope-set)
// tuples and mints the consent-bound delegated credential on grant.
type Manager struct {
	store  Store
	tokens *token.Service
	policy ScopePolicy
	clock  func() time.Time
	log    *slog.Logger
}

// NewManager creates a consent manager on top of the given store.
func NewManager(store Store, tokens *token.Service, policy ScopePolicy) *Manager {
	return &Manager{
		store:  store,
		tokens: tokens,
		policy: policy,
		clock:  time.Now,
		log:    slog.Default().With("component", "consent"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Request records consent for the requested scopes, narrowed to the
// policy allow-list for the delegatee's agent type, and immediately mints
// a delegated credential bound to the new record. When the intersection
// is empty the consent is still recorded (granted with empty scope) and
// no credential is minted.
func (m *Manager) Request(ctx context.Context, req Request) (*Grant, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("consent request: user id is required")
	}
	if req.Delegatee.ID == "" {
		return nil, fmt.Errorf("consent request: delegatee is required")
	}

	ttl := req.TTL
	if ttl <= 0 || ttl > m.policy.MaxTTL {
		ttl = m.policy.MaxTTL
	}

	now := m.clock().UTC()
	rec := &Record{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		DelegateeAgent: req.Delegatee.ID,
		Scopes:         m.policy.GrantableScopes(req.Delegatee.AgentType, req.Scopes),
		Purpose:        req.Purpose,
		GrantedAt:      now,
		ExpiresAt:      now.Add(ttl),
		Status:         StatusActive,
	}
	if err := m.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record consent: %w", err)
	}

	grant := &Grant{Record: rec}
	if len(rec.Scopes) == 0 {
		m.log.WarnContext(ctx, "consent granted with empty scope",
			"consent_id", rec.ID, "delegatee", req.Delegatee.ID, "requested", req.Scopes)
		return grant, nil
	}

	raw, claims, err := m.tokens.IssueDelegated(req.Delegator, req.Delegatee, req.UserID, rec.Scopes, rec.ID, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to mint delegated credential: %w", err)
	}
	grant.Credential = raw
	grant.Claims = claims
	return grant, nil
}

// Revoke marks the consent revoked. Idempotent: revoking an unknown or
// already-revoked id succeeds and is logged as a no-op. A store failure
// returns false, because the consent may still be active; callers must
// surface that and retry. The underlying delegated credential keeps
// parsing until it expires; liveness checks against this manager are the
// caller's responsibility at point of use.
func (m *Manager) Revoke(ctx context.Context, consentID, requesterID string) bool {
	swapped, err := m.store.SetStatus(ctx, consentID, StatusActive, StatusRevoked)
	if err != nil {
		m.log.ErrorContext(ctx, "consent revoke failed", "consent_id", consentID, "error", err)
		return false
	}
	if !swapped {
		m.log.InfoContext(ctx, "consent revoke no-op",
			"consent_id", consentID, "requester", requesterID)
	}
	return true
}

// IsActive reports whether the consent is active and unexpired. Records
// past their expiry are lazily transitioned to expired.
func (m *Manager) IsActive(ctx context.Context, consentID string) bool {
	rec, err := m.store.Get(ctx, consentID)
	if err != nil {
		return false
	}
	if rec.Status != StatusActive {
		return false
	}
	if !m.clock().Before(rec.ExpiresAt) {
		if _, err := m.store.SetStatus(ctx, consentID, StatusActive, StatusExpired); err != nil {
			m.log.ErrorContext(ctx, "consent expiry transition failed", "consent_id", consentID, "error", err)
		}
		return false
	}
	return true
}

// Get returns the consent record by id.
func (m *Manager) Get(ctx context.Context, consentID string) (*Record, error) {
	return m.store.Get(ctx, consentID)
}
