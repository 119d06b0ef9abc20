package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestJWKSClientThrottlesUnknownKids(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	small, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		_ = json.NewEncoder(w).Encode(JWKS{Keys: []JWK{PublicJWK(&key.PublicKey, "kid-1"), PublicJWK(&small.PublicKey, "weak")}})
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c := NewJWKSClient(srv.URL, 5*time.Minute)
	c.now = func() time.Time { return now }

	if _, err := c.Get("kid-1"); err != nil {
		t.Fatalf("expected kid-1: %v", err)
	}
	if _, err := c.Get("weak"); err != ErrKeyNotFound {
		t.Fatalf("short keys must be ignored, got %v", err)
	}
	if _, err := c.Get("forged"); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if got := fetches.Load(); got != 1 {
		t.Fatalf("unknown kids inside the throttle window must not refetch, got %d fetches", got)
	}

	now = now.Add(time.Minute)
	_, _ = c.Get("forged")
	if got := fetches.Load(); got != 2 {
		t.Fatalf("expected a refetch after the throttle window, got %d", got)
	}
}
