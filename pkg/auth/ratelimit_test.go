package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconops/vigil/pkg/auth"
)

func TestLimiter_AllowWithinBurst(t *testing.T) {
	limiter := auth.NewLimiter(1, 3)
	defer limiter.Close()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(context.Background(), "agent.detection")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst should be allowed", i)
	}

	ok, err := limiter.Allow(context.Background(), "agent.detection")
	require.NoError(t, err)
	assert.False(t, ok, "request beyond burst should be rejected")
}

func TestLimiter_PrincipalsAreIndependent(t *testing.T) {
	limiter := auth.NewLimiter(1, 1)
	defer limiter.Close()

	ok, _ := limiter.Allow(context.Background(), "agent.detection")
	assert.True(t, ok)
	ok, _ = limiter.Allow(context.Background(), "agent.detection")
	assert.False(t, ok)

	// A different principal has its own bucket.
	ok, _ = limiter.Allow(context.Background(), "agent.scheduling")
	assert.True(t, ok)
}

func TestLimiter_SweepEvictsIdleEntries(t *testing.T) {
	now := time.Now()
	limiter := auth.NewLimiter(1, 1).WithClock(func() time.Time { return now })
	defer limiter.Close()

	_, _ = limiter.Allow(context.Background(), "agent.detection")
	_, _ = limiter.Allow(context.Background(), "agent.scheduling")
	require.Equal(t, 2, limiter.Len())

	now = now.Add(5 * time.Minute)
	limiter.Sweep()
	assert.Equal(t, 0, limiter.Len())
}

func TestLimiter_SweepKeepsRecentEntries(t *testing.T) {
	now := time.Now()
	limiter := auth.NewLimiter(1, 1).WithClock(func() time.Time { return now })
	defer limiter.Close()

	_, _ = limiter.Allow(context.Background(), "agent.detection")
	now = now.Add(time.Minute)
	limiter.Sweep()
	assert.Equal(t, 1, limiter.Len())
}

type denyStore struct{}

func (denyStore) Allow(context.Context, string) (bool, error) { return false, nil }

func TestRateLimitMiddleware_RejectsWithRetryAfter(t *testing.T) {
	handler := auth.RateLimitMiddleware(denyStore{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/workflows", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

type recordingStore struct{ actors []string }

func (s *recordingStore) Allow(_ context.Context, actorID string) (bool, error) {
	s.actors = append(s.actors, actorID)
	return true, nil
}

func TestRateLimitMiddleware_UsesPrincipalAsActor(t *testing.T) {
	store := &recordingStore{}
	handler := auth.RateLimitMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/workflows", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{ID: "agent.coordinator"}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.actors, 1)
	assert.Equal(t, "agent.coordinator", store.actors[0])
}

func TestRateLimitMiddleware_FallsBackToRemoteAddr(t *testing.T) {
	store := &recordingStore{}
	handler := auth.RateLimitMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/workflows", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Len(t, store.actors, 1)
	assert.Equal(t, req.RemoteAddr, store.actors[0])
}

func TestRateLimitMiddleware_NilStorePassesThrough(t *testing.T) {
	reached := false
	handler := auth.RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, reached)
}
