package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func TestVerify_Valid(t *testing.T) {
	tok, err := Sign(testSecret, "agribeta-idp", "user-1", "farmer@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := NewVerifier(testSecret, "agribeta-idp").Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "farmer@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerify_Rejects(t *testing.T) {
	good, _ := Sign(testSecret, "agribeta-idp", "user-1", "", time.Hour)
	expired, _ := Sign(testSecret, "agribeta-idp", "user-1", "", -time.Hour)
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := []struct {
		name     string
		verifier *Verifier
		token    string
	}{
		{"wrong secret", NewVerifier("other", ""), good},
		{"wrong issuer", NewVerifier(testSecret, "someone-else"), good},
		{"expired", NewVerifier(testSecret, ""), expired},
		{"alg none", NewVerifier(testSecret, ""), noneAlg},
		{"garbage", NewVerifier(testSecret, ""), "a.b.c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.verifier.Verify(tc.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestRequireBearer(t *testing.T) {
	v := NewVerifier(testSecret, "")
	var got Principal
	h := RequireBearer(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rw.Code)
	}

	tok, _ := Sign(testSecret, "", "user-42", "a@b.c", time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if got.Subject != "user-42" {
		t.Fatalf("unexpected principal %+v", got)
	}
}
