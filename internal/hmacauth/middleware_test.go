package hmacauth

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func signedRequest(t *testing.T, secret, nonce, body string, now time.Time) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(now.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set(headerSignature, Sign(secret, ts, nonce, []byte(body)))
	req.Header.Set(headerTimestamp, ts)
	req.Header.Set(headerNonce, nonce)
	return req
}

func TestMiddleware_AllowsValidSignature(t *testing.T) {
	body := `{"hello":"world"}`
	now := time.Unix(1_700_000_000, 0)

	v := &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now:     func() time.Time { return now },
	}

	rec := httptest.NewRecorder()
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	v.Middleware(handler).ServeHTTP(rec, signedRequest(t, "secret", "nonce-1", body, now))

	if !called {
		t.Fatalf("handler was not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddleware_RejectsBadSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now:     func() time.Time { return now },
	}

	req := signedRequest(t, "wrong-secret", "nonce-1", "{}", now)
	rec := httptest.NewRecorder()
	v.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_RejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now:     func() time.Time { return now.Add(10 * time.Minute) },
	}

	req := signedRequest(t, "secret", "nonce-1", "{}", now)
	rec := httptest.NewRecorder()
	v.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_RejectsReplayedNonce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now:     func() time.Time { return now },
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec1 := httptest.NewRecorder()
	v.Middleware(ok).ServeHTTP(rec1, signedRequest(t, "secret", "nonce-x", "{}", now))
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	v.Middleware(ok).ServeHTTP(rec2, signedRequest(t, "secret", "nonce-x", "{}", now))
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("replayed nonce should be rejected, got %d", rec2.Code)
	}

	// A fresh nonce is still accepted.
	rec3 := httptest.NewRecorder()
	v.Middleware(ok).ServeHTTP(rec3, signedRequest(t, "secret", "nonce-y", "{}", now))
	if rec3.Code != http.StatusOK {
		t.Fatalf("fresh nonce should pass, got %d", rec3.Code)
	}
}

func TestMiddleware_NoSecretDisablesAuth(t *testing.T) {
	v := &Verifier{MaxSkew: time.Minute}
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	called := false
	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rec, req)
	if !called {
		t.Fatal("handler should run when no secret is configured")
	}
}
