package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers emitted for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSPolicy allows the browser app at appURL to call the API.
func DefaultCORSPolicy(origins []string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", RequestIDHeader, "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	}
}

// WithCORS is a no-op when no origins are configured.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := trimAll(cfg.AllowedOrigins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	methods := strings.Join(trimAll(cfg.AllowedMethods), ", ")
	headers := strings.Join(trimAll(cfg.AllowedHeaders), ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allow, ok := allowedOrigin(origin, origins, cfg.AllowCredentials)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			h.Add("Vary", "Origin")
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(int(cfg.MaxAge.Seconds())))
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// A wildcard echoes the origin when credentials are allowed, since browsers
// reject "*" together with credentials.
func allowedOrigin(origin string, allowed []string, credentials bool) (string, bool) {
	for _, candidate := range allowed {
		if candidate == "*" {
			if credentials {
				return origin, true
			}
			return "*", true
		}
		if strings.EqualFold(strings.TrimRight(candidate, "/"), origin) {
			return origin, true
		}
	}
	return "", false
}
