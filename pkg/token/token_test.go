package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconops/vigil/pkg/token"
)

func newService(t *testing.T) *token.Service {
	t.Helper()
	ks, err := token.NewEphemeralKeySet()
	require.NoError(t, err)
	return token.NewService(ks)
}

func TestIssue_RoundTrip(t *testing.T) {
	svc := newService(t)

	raw, issued, err := svc.Issue("agent.detection", []string{"a", "b"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(raw, ".")))

	claims, err := svc.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "agent.detection", claims.Subject)
	assert.Equal(t, "a b", claims.Scope)
	assert.Equal(t, token.Issuer, claims.Issuer)
	assert.Equal(t, issued.ID, claims.ID)
	assert.NotEmpty(t, claims.ID)
	assert.Nil(t, claims.Delegation)
}

func TestIssue_InvalidInput(t *testing.T) {
	svc := newService(t)

	_, _, err := svc.Issue("", []string{"a"}, time.Minute)
	assert.Error(t, err)

	_, _, err = svc.Issue("agent.x", nil, time.Minute)
	assert.Error(t, err)

	_, _, err = svc.Issue("agent.x", []string{"a"}, 0)
	assert.Error(t, err)
}

func TestIssue_CapsTTL(t *testing.T) {
	svc := newService(t)

	_, claims, err := svc.Issue("agent.x", []string{"a"}, 24*time.Hour)
	require.NoError(t, err)
	assert.LessOrEqual(t, claims.ExpiresAt.Sub(claims.IssuedAt.Time), token.MaxDirectTTL)
}

func TestIssueDelegated_EmbedsDelegation(t *testing.T) {
	svc := newService(t)

	delegator := token.Agent("agent.coordinator", token.AgentCoordinator)
	delegatee := token.Agent("agent.scheduling", token.AgentScheduling)

	raw, _, err := svc.IssueDelegated(delegator, delegatee, "user-1", []string{"calendar.write"}, "consent-1", 0)
	require.NoError(t, err)

	claims, err := svc.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "agent.scheduling", claims.Subject)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, token.AgentScheduling, claims.AgentType)
	require.NotNil(t, claims.Delegation)
	assert.Equal(t, "agent.coordinator", claims.Delegation.Delegator)
	assert.Equal(t, "agent.scheduling", claims.Delegation.Delegatee)
	assert.Equal(t, "consent-1", claims.Delegation.ConsentID)

	// Delegated TTL defaults to and never exceeds 30 minutes.
	assert.LessOrEqual(t, claims.ExpiresAt.Sub(claims.IssuedAt.Time), token.MaxDelegatedTTL)
}

func TestValidate_RejectsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(t).WithClock(func() time.Time { return now })

	raw, _, err := svc.Issue("agent.x", []string{"a"}, 10*time.Minute)
	require.NoError(t, err)

	// Still valid just before expiry.
	now = now.Add(9 * time.Minute)
	_, err = svc.Validate(raw)
	require.NoError(t, err)

	// Rejected at and after expiry.
	now = now.Add(2 * time.Minute)
	_, err = svc.Validate(raw)
	assert.ErrorIs(t, err, token.ErrAuthentication)
}

func TestValidate_RejectsMalformed(t *testing.T) {
	svc := newService(t)

	for _, raw := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := svc.Validate(raw)
		assert.ErrorIs(t, err, token.ErrAuthentication, "input %q", raw)
	}
}

func TestValidate_RejectsTamperedPayload(t *testing.T) {
	svc := newService(t)

	raw, _, err := svc.Issue("agent.x", []string{"a"}, time.Minute)
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	// Flip bytes in the payload segment; signature no longer matches.
	payload := []byte(parts[1])
	payload[0] ^= 0x01
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = svc.Validate(tampered)
	assert.ErrorIs(t, err, token.ErrAuthentication)
}

func TestValidate_RejectsForeignKey(t *testing.T) {
	svc := newService(t)
	other := newService(t)

	raw, _, err := other.Issue("agent.x", []string{"a"}, time.Minute)
	require.NoError(t, err)

	_, err = svc.Validate(raw)
	assert.ErrorIs(t, err, token.ErrAuthentication)
}

func TestVerifyScopes(t *testing.T) {
	tests := []struct {
		name     string
		required []string
		granted  []string
		want     bool
	}{
		{"exact match", []string{"a"}, []string{"a"}, true},
		{"subset", []string{"a"}, []string{"a", "b"}, true},
		{"empty required", nil, []string{"a"}, true},
		{"missing scope", []string{"a", "c"}, []string{"a", "b"}, false},
		{"empty granted", []string{"a"}, nil, false},
		{"wildcard", []string{"a", "b", "c"}, []string{"*"}, true},
		{"wildcard among others", []string{"x"}, []string{"a", "*"}, true},
		{"wildcard required not granted", []string{"*"}, []string{"a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, token.VerifyScopes(tt.required, tt.granted))
		})
	}
}

func TestKeySet_RotationKeepsOldTokensVerifiable(t *testing.T) {
	ks, err := token.NewEphemeralKeySet()
	require.NoError(t, err)
	svc := token.NewService(ks)

	raw, _, err := svc.Issue("agent.x", []string{"a"}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, ks.Rotate())

	_, err = svc.Validate(raw)
	assert.NoError(t, err)

	// New tokens sign with the rotated key and validate too.
	raw2, _, err := svc.Issue("agent.y", []string{"b"}, time.Minute)
	require.NoError(t, err)
	_, err = svc.Validate(raw2)
	assert.NoError(t, err)
}

func TestKeySet_RejectsShortSecret(t *testing.T) {
	_, err := token.NewHMACKeySet([]byte("too-short"))
	assert.Error(t, err)
}
