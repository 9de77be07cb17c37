package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/beaconops/vigil/pkg/api"
)

// LimiterStore abstracts rate-limit state so multi-instance deployments
// can share it (see RedisLimiterStore).
type LimiterStore interface {
	// Allow reports whether the actor may proceed.
	Allow(ctx context.Context, actorID string) (bool, error)
}

// Limiter is a bounded, time-windowed per-principal rate limiter.
// Entries idle longer than maxIdle are swept periodically, so the map
// stays bounded even under bursts of unique principals.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	maxIdle  time.Duration
	clock    func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter allowing rps requests per second with the
// given burst per principal, and starts the background sweep.
func NewLimiter(rps int, burst int) *Limiter {
	l := &Limiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		maxIdle:  3 * time.Minute,
		clock:    time.Now,
		stop:     make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// WithClock overrides the clock for deterministic testing.
func (l *Limiter) WithClock(clock func() time.Time) *Limiter {
	l.clock = clock
	return l
}

// Allow implements LimiterStore.
func (l *Limiter) Allow(ctx context.Context, actorID string) (bool, error) {
	l.mu.Lock()
	v, exists := l.visitors[actorID]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[actorID] = v
	}
	v.lastSeen = l.clock()
	l.mu.Unlock()

	return v.limiter.Allow(), nil
}

// Len returns the number of tracked principals.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Sweep removes entries idle longer than the retention window.
func (l *Limiter) Sweep() {
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.maxIdle {
			delete(l.visitors, id)
		}
	}
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stop:
			return
		}
	}
}

// RateLimitMiddleware enforces per-actor rate limiting at the HTTP
// layer. The actor is the authenticated Principal, falling back to the
// remote address. On limit exceeded it returns 429 with Retry-After.
func RateLimitMiddleware(store LimiterStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Fail open if no store configured (dev mode)
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			actorID := r.RemoteAddr
			if principal, err := GetPrincipal(r.Context()); err == nil {
				actorID = principal.ID
			}

			allowed, err := store.Allow(r.Context(), actorID)
			if err != nil {
				// Fail open on limiter errors to avoid blocking all traffic
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				api.WriteTooManyRequests(w, 5)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
