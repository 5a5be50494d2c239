package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// KeyFunc derives the rate limit bucket for a request.
type KeyFunc func(r *http.Request) string

// RateLimiter is an in-process fixed-window limiter, used when Redis is not
// configured (single instance deployments and tests).
type RateLimiter struct {
	limit    int
	window   time.Duration
	key      KeyFunc
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	count     int
	resetTime time.Time
}

func NewRateLimiter(limit int, window time.Duration, key KeyFunc) *RateLimiter {
	if key == nil {
		key = ClientIP
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		key:      key,
		now:      time.Now,
		visitors: map[string]*visitor{},
	}
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := rl.allow(rl.key(r))
			if !ok {
				tooManyRequests(w, retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v := rl.visitors[key]
	if v == nil || now.After(v.resetTime) {
		rl.visitors[key] = &visitor{count: 1, resetTime: now.Add(rl.window)}
		rl.sweep(now)
		return true, 0
	}
	if v.count >= rl.limit {
		return false, v.resetTime.Sub(now)
	}
	v.count++
	return true, 0
}

// sweep drops expired visitors so the map does not grow without bound.
func (rl *RateLimiter) sweep(now time.Time) {
	if len(rl.visitors) < 1024 {
		return
	}
	for k, v := range rl.visitors {
		if now.After(v.resetTime) {
			delete(rl.visitors, k)
		}
	}
}

// ClientIP keys by the first X-Forwarded-For hop or the remote address.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func tooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int(retryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	WriteError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
}
