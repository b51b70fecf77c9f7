// Package ratelimit caps per-client request rates on the proxy routes with
// a fixed one-minute window kept in memory.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const window = time.Minute

// Limiter counts requests per identifier within the current window.
// Safe for concurrent use.
type Limiter struct {
	limit int
	now   func() time.Time

	mu      sync.Mutex
	windows map[string]*windowState
}

type windowState struct {
	count int
	reset time.Time
}

// NewLimiter builds a limiter allowing limit requests per identifier per
// minute. A limit of zero or less disables limiting.
func NewLimiter(limit int) *Limiter {
	return &Limiter{
		limit:   limit,
		now:     time.Now,
		windows: make(map[string]*windowState),
	}
}

// Result describes one admission decision.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Allow records one request for the identifier and reports whether it fits
// in the current window.
func (l *Limiter) Allow(identifier string) Result {
	if l.limit <= 0 {
		return Result{Allowed: true}
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.windows[identifier]
	if !ok || !state.reset.After(now) {
		state = &windowState{reset: now.Add(window)}
		l.windows[identifier] = state
	}

	if state.count >= l.limit {
		return Result{Allowed: false, Remaining: 0, Reset: state.reset}
	}
	state.count++
	return Result{Allowed: true, Remaining: l.limit - state.count, Reset: state.reset}
}

// identify keys a request by its API key when present, falling back to the
// remote address so unauthenticated deployments still get per-host limits.
func identify(r *http.Request) string {
	if key := r.Header.Get("Authorization"); key != "" {
		return key
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429 and standard
// rate-limit headers.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := l.Allow(identify(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Reset.IsZero() {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
		}

		if !result.Allowed {
			retryAfter := int(time.Until(result.Reset).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limit exceeded","code":"rate_limited"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
