package httpx

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, func(*http.Request) string { return "k" })
	h := rl.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
		if rw.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rw.Code)
		}
	}
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rw.Code)
	}
	if rw.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if ok, _ := rl.allow("a"); !ok {
		t.Fatal("first request should pass")
	}
	if ok, _ := rl.allow("a"); ok {
		t.Fatal("second request should be limited")
	}
	now = now.Add(61 * time.Second)
	if ok, _ := rl.allow("a"); !ok {
		t.Fatal("request after window should pass")
	}
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rl := NewRedisRateLimiter(rdb, 1, time.Minute, "test", func(*http.Request) string { return "user-1" })
	h := rl.Middleware(slog.New(slog.NewTextHandler(io.Discard, nil)), false)(okHandler())

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/", nil))
	if rw.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rw.Code)
	}
}

func TestRedisRateLimiter_FailOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	rl := NewRedisRateLimiter(rdb, 1, time.Minute, "test", nil)
	h := rl.Middleware(nil, true)(okHandler())
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200, got %d", rw.Code)
	}
}

func TestWithCORS_Preflight(t *testing.T) {
	h := WithCORS(DefaultCORSPolicy([]string{"https://app.agribeta.io"}))(okHandler())
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/me", nil)
	req.Header.Set("Origin", "https://app.agribeta.io")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if rw.Header().Get("Access-Control-Allow-Origin") != "https://app.agribeta.io" {
		t.Fatalf("unexpected allow origin %q", rw.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestWithRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rw.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rw.Header().Get(RequestIDHeader))
	}
}

func TestWithRequestID_KeepsValidCallerID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "req-42" {
		t.Fatalf("expected caller id, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "bad id" || seen == "" {
		t.Fatalf("expected generated id, got %q", seen)
	}
}

func TestWithRecover(t *testing.T) {
	h := WithRecover(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
}
