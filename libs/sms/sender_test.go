package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookSender(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "tok")
	if err := s.Send(context.Background(), "+919876543210", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["to"] != "+919876543210" || got["body"] != "hello" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if auth != "Bearer tok" {
		t.Fatalf("unexpected auth header: %q", auth)
	}
}

func TestWebhookSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookSender(srv.URL, "").Send(context.Background(), "+1", "x"); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestFromEnvDefaultsToNoop(t *testing.T) {
	t.Setenv("SMS_PROVIDER", "")
	s, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if s.ProviderID() != "sms-noop" {
		t.Fatalf("unexpected provider %q", s.ProviderID())
	}

	t.Setenv("SMS_PROVIDER", "pigeon")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
