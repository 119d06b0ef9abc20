package httpx

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		codes = append(codes, rw.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://app.repromitra.in"},
		AllowedMethods: []string{"GET", "POST"},
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/appointments", nil)
	req.Header.Set("Origin", "https://app.repromitra.in")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if rw.Header().Get("Access-Control-Allow-Origin") != "https://app.repromitra.in" {
		t.Fatalf("missing allow origin header: %v", rw.Header())
	}
}

func TestCORSExposesHeadersOnSimpleRequests(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"*"},
		ExposedHeaders: []string{"Content-Disposition"},
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/prescriptions/a1/pdf", nil)
	req.Header.Set("Origin", "https://clinic.example")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || rw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected response %d %v", rw.Code, rw.Header())
	}
	if rw.Header().Get("Access-Control-Expose-Headers") != "Content-Disposition" {
		t.Fatalf("expected exposed headers, got %v", rw.Header())
	}
}

func TestRateLimiterRetryAfter(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/otp/start", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected remaining 0, got %q", rw.Header().Get("X-RateLimit-Remaining"))
	}

	now = now.Add(20 * time.Second)
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusTooManyRequests || rw.Header().Get("Retry-After") != "40" {
		t.Fatalf("expected 429 with Retry-After 40, got %d %q", rw.Code, rw.Header().Get("Retry-After"))
	}

	now = now.Add(time.Minute)
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("window should have reset, got %d", rw.Code)
	}
	if len(rl.windows) != 1 {
		t.Fatalf("expired windows should be pruned, have %d", len(rl.windows))
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestRateLimitFailMode(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
	for _, tc := range []struct {
		failOpen bool
		want     int
	}{{true, http.StatusOK}, {false, http.StatusServiceUnavailable}} {
		rw := httptest.NewRecorder()
		RateLimit(failingLimiter{}, RateLimitOptions{FailOpen: tc.failOpen})(ok).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
		if rw.Code != tc.want {
			t.Fatalf("failOpen=%v: expected %d, got %d", tc.failOpen, tc.want, rw.Code)
		}
	}
}

func TestWithRecoverAndAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		WithRequestID,
		WithAccessLog(logger),
		WithRecover(logger),
	)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil))
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR","msg":"http request"`) {
		t.Fatalf("expected access log at error level, got %s", buf.String())
	}
}

func TestRequestIDEchoed(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if seen != "req-42" || rw.Header().Get(RequestIDHeader) != "req-42" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rw.Header().Get(RequestIDHeader))
	}
}

func TestRequestIDReplacesMalformed(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 80))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if len(seen) != 36 || rw.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("expected a fresh uuid, got ctx=%q header=%q", seen, rw.Header().Get(RequestIDHeader))
	}
	if ValidRequestID("a b") || !ValidRequestID("req_1.2-3") {
		t.Fatalf("unexpected validation result")
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Phone string `json:"phone"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"phone":"+91","extra":1}`))
	if err := DecodeJSON(req, &dst); err != ErrInvalidJSON {
		t.Fatalf("expected ErrInvalidJSON, got %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"phone":"+91"}`))
	if err := DecodeJSON(req, &dst); err != nil || dst.Phone != "+91" {
		t.Fatalf("unexpected decode result %v %+v", err, dst)
	}
}
