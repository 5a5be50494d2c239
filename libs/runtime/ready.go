package runtime

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name     string
	Check    func(context.Context) error
	Optional bool
}

// NewBaseMuxWithReady returns a mux serving /healthz and /readyz.
// Optional checks are reported in the body but never fail readiness.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		failures, warnings := runChecks(r.Context(), checks)
		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(append(failures, warnings...), "; ")))
			return
		}
		w.WriteHeader(http.StatusOK)
		if len(warnings) > 0 {
			_, _ = w.Write([]byte("ok (degraded: " + strings.Join(warnings, "; ") + ")"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func runChecks(ctx context.Context, checks []ReadyCheck) (failures, warnings []string) {
	for _, check := range checks {
		if check.Check == nil {
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check.Check(checkCtx)
		cancel()
		if err == nil {
			continue
		}
		name := check.Name
		if name == "" {
			name = "dependency"
		}
		msg := name + ": " + err.Error()
		if check.Optional {
			warnings = append(warnings, msg)
			continue
		}
		failures = append(failures, msg)
	}
	return failures, warnings
}
