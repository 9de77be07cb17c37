package token

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeySet manages active signing keys and verification of past keys.
// Supports key rotation without downtime.
type KeySet interface {
	// Sign creates a signed token with the current active key.
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
	// KeyFunc returns the key for verification based on the token header.
	KeyFunc() jwt.Keyfunc
}

// HMACKeySet signs with HMAC-SHA256. Both minting and verification happen
// inside one trust domain, so a shared secret is sufficient; there is no
// unsigned or placeholder path.
type HMACKeySet struct {
	mu         sync.RWMutex
	currentKID string
	keys       map[string][]byte
}

const minSecretLen = 32

// NewHMACKeySet creates a key set seeded with the given secret.
// The secret must be at least 32 bytes.
func NewHMACKeySet(secret []byte) (*HMACKeySet, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("signing secret too short: %d bytes (need %d)", len(secret), minSecretLen)
	}
	ks := &HMACKeySet{
		currentKID: fmt.Sprintf("key-%d", time.Now().UnixNano()),
		keys:       make(map[string][]byte),
	}
	ks.keys[ks.currentKID] = secret
	return ks, nil
}

// NewEphemeralKeySet creates a key set with a random secret.
// Tokens do not survive a process restart; intended for tests and
// single-process deployments.
func NewEphemeralKeySet() (*HMACKeySet, error) {
	secret := make([]byte, minSecretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate signing secret: %w", err)
	}
	return NewHMACKeySet(secret)
}

// Rotate installs a fresh random key as the active signing key.
// Previously issued tokens remain verifiable until evicted.
func (ks *HMACKeySet) Rotate() error {
	secret := make([]byte, minSecretLen)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	kid := fmt.Sprintf("key-%d", time.Now().UnixNano())
	ks.keys[kid] = secret
	ks.currentKID = kid

	// Bound the retained key set
	if len(ks.keys) > 10 {
		for k := range ks.keys {
			if k != kid {
				delete(ks.keys, k)
				break
			}
		}
	}
	return nil
}

func (ks *HMACKeySet) Sign(ctx context.Context, claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	key := ks.keys[ks.currentKID]
	kid := ks.currentKID
	ks.mu.RUnlock()

	if key == nil {
		return "", fmt.Errorf("no active key")
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = kid
	return t.SignedString(key)
}

func (ks *HMACKeySet) KeyFunc() jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("missing kid in header")
		}

		ks.mu.RLock()
		defer ks.mu.RUnlock()
		key, exists := ks.keys[kid]
		if !exists {
			return nil, fmt.Errorf("key not found: %s", kid)
		}
		return key, nil
	}
}
