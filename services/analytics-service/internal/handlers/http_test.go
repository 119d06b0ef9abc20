package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/analytics-service/internal/metrics"
)

type fakeStore struct {
	doctorID string
	from, to time.Time
}

func (f *fakeStore) DoctorDays(_ context.Context, doctorID string, from, to time.Time) ([]metrics.DoctorDay, error) {
	f.doctorID, f.from, f.to = doctorID, from, to
	return []metrics.DoctorDay{
		{Day: "2026-03-09", Booked: 2, Completed: 1},
		{Day: "2026-03-10", Booked: 1, Cancelled: 1, Prescriptions: 1},
	}, nil
}

func newServer(store *fakeStore) http.Handler {
	h := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func request(role, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/me"+query, nil)
	session.Session{UserID: "doc-1", Role: role}.Apply(req.Header)
	return req
}

func TestMineSumsDays(t *testing.T) {
	store := &fakeStore{}
	rec := httptest.NewRecorder()
	newServer(store).ServeHTTP(rec, request(session.RoleDoctor, "?days=7"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got summary
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Booked != 3 || got.Cancelled != 1 || got.Completed != 1 || got.Prescriptions != 1 {
		t.Fatalf("unexpected totals: %+v", got)
	}
	if got.From != "2026-03-04" || got.To != "2026-03-10" || store.doctorID != "doc-1" {
		t.Fatalf("unexpected window: %+v doctor=%s", got, store.doctorID)
	}
}

func TestMineRejects(t *testing.T) {
	cases := []struct {
		role, query string
		want        int
	}{
		{session.RolePatient, "", http.StatusForbidden},
		{session.RoleDoctor, "?days=0", http.StatusBadRequest},
		{session.RoleDoctor, "?days=abc", http.StatusBadRequest},
		{session.RoleDoctor, "?days=365", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		newServer(&fakeStore{}).ServeHTTP(rec, request(tc.role, tc.query))
		if rec.Code != tc.want {
			t.Fatalf("%s%s: expected %d, got %d", tc.role, tc.query, tc.want, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	newServer(&fakeStore{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metrics/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}
}
