package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window rate limiter backed by Redis, shared by
// every api-service instance.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
	key    KeyFunc
}

var redisFixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string, key KeyFunc) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	if key == nil {
		key = ClientIP
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix, key: key}
}

// Middleware lets requests through on Redis errors when failOpen is set.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, ttl, err := rl.incr(r.Context(), rl.prefix+":"+rl.key(r))
			if err != nil {
				if logger != nil {
					logger.WarnContext(r.Context(), "redis rate limiter error", "err", err)
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, "rate_limiter_unavailable", "rate limiter unavailable")
				return
			}
			if count > int64(rl.limit) {
				tooManyRequests(w, ttl)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) incr(ctx context.Context, key string) (int64, time.Duration, error) {
	ms := rl.window.Milliseconds()
	if ms <= 0 {
		ms = int64(time.Minute / time.Millisecond)
	}
	res, err := redisFixedWindowScript.Run(ctx, rl.rdb, []string{key}, ms).Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis script result length %d", len(res))
	}
	count, err := toInt64(res[0])
	if err != nil {
		return 0, 0, err
	}
	ttl, err := toInt64(res[1])
	if err != nil {
		return 0, 0, err
	}
	return count, time.Duration(ttl) * time.Millisecond, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		// Lua sometimes returns strings depending on Redis config/driver conversions.
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", v)
	}
}
