package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xenking/parcel-checkout/pkg/httperr"
)

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window and key.
	Max    int
	Window time.Duration
	// KeyFunc defaults to the client IP.
	KeyFunc func(*http.Request) string
}

// window counts requests of the current and the previous fixed window; the
// previous count is weighted by its overlap with the sliding window.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

// Limiter is an in-memory sliding window rate limiter.
type Limiter struct {
	limit int
	size  time.Duration
	mu    sync.Mutex
	byKey map[string]*window
}

// NewLimiter creates a limiter allowing limit events per size.
func NewLimiter(limit int, size time.Duration) *Limiter {
	return &Limiter{limit: limit, size: size, byKey: make(map[string]*window)}
}

// Allow records an event for key at now. It reports whether the event is
// within the limit, the remaining budget and when the current window ends.
func (l *Limiter) Allow(key string, now time.Time) (ok bool, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.size)
	win, found := l.byKey[key]
	switch {
	case !found:
		win = &window{start: start}
		l.byKey[key] = win
	case start.Sub(win.start) >= 2*l.size:
		*win = window{start: start}
	case start.After(win.start):
		*win = window{start: start, prev: win.curr}
	}

	reset = win.start.Add(l.size)
	weight := 1 - float64(now.Sub(win.start))/float64(l.size)
	used := win.prev*weight + win.curr
	if used >= float64(l.limit) {
		return false, 0, reset
	}
	win.curr++
	return true, max(l.limit-int(math.Ceil(used+1)), 0), reset
}

// Evict drops keys idle for two windows.
func (l *Limiter) Evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, win := range l.byKey {
		if now.Sub(win.start) >= 2*l.size {
			delete(l.byKey, key)
		}
	}
}

// RateLimit rejects requests over the limit with 429. Every response carries
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset. Idle keys
// are evicted in the background until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg.Max, cfg.Window)
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.Evict(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, remaining, reset := l.Allow(keyFunc(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				retry := max(time.Until(reset), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				httperr.Write(w, http.StatusTooManyRequests, "Rate limit exceeded.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP or the remote
// address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
