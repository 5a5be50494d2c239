package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadyz_FailsOnRequiredCheck(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "db", Check: func(context.Context) error { return errors.New("down") }},
	)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "db: down") {
		t.Fatalf("unexpected body %q", rw.Body.String())
	}
}

func TestReadyz_OptionalCheckDegrades(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "redis", Optional: true, Check: func(context.Context) error { return errors.New("refused") }},
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
	)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "degraded") {
		t.Fatalf("expected degraded note, got %q", rw.Body.String())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG").String() != "DEBUG" {
		t.Fatal("expected debug level")
	}
	if ParseLevel("").String() != "INFO" {
		t.Fatal("expected info default")
	}
}
