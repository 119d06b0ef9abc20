package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/booking-service/internal/booking"
	"github.com/repromitra/telehealth/services/booking-service/internal/model"
)

type stubBookings struct {
	submitErr error
	lastReq   booking.SubmitRequest
	lastSess  session.Session
}

func (s *stubBookings) Slots(_ context.Context, doctorID, date string) ([]string, error) {
	if date == "2000-01-01" {
		return nil, booking.ErrValidation
	}
	return []string{"09:00", "09:30"}, nil
}

func (s *stubBookings) Submit(_ context.Context, sess session.Session, req booking.SubmitRequest) (model.Appointment, bool, error) {
	s.lastReq = req
	s.lastSess = sess
	if s.submitErr != nil {
		return model.Appointment{}, false, s.submitErr
	}
	return model.Appointment{
		ID:        "appt-1",
		PatientID: sess.UserID,
		DoctorID:  req.DoctorID,
		Date:      time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		Time:      req.Time,
		Reason:    req.Reason,
		Status:    model.StatusScheduled,
	}, req.IdempotencyKey == "seen", nil
}

func (s *stubBookings) List(context.Context, session.Session, int) ([]booking.DashboardItem, error) {
	return []booking.DashboardItem{{Appointment: model.Appointment{ID: "appt-1", Status: model.StatusScheduled}, DoctorName: "Dr. Meera Nair"}}, nil
}

func (s *stubBookings) Get(_ context.Context, sess session.Session, id string) (model.Appointment, error) {
	if id == "missing" {
		return model.Appointment{}, model.ErrNotFound
	}
	if sess.UserID != "patient-1" {
		return model.Appointment{}, booking.ErrForbidden
	}
	return model.Appointment{ID: id, PatientID: "patient-1"}, nil
}

func (s *stubBookings) Cancel(_ context.Context, _ session.Session, id, _ string) (model.Appointment, error) {
	return model.Appointment{ID: id, Status: model.StatusCancelled}, nil
}

func newMux(stub *stubBookings) *http.ServeMux {
	mux := http.NewServeMux()
	NewBookingHandler(stub, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux)
	return mux
}

func asPatient(req *http.Request) *http.Request {
	req.Header.Set(session.HeaderUserID, "patient-1")
	req.Header.Set(session.HeaderRole, session.RolePatient)
	return req
}

func TestSlotsRequiresParams(t *testing.T) {
	mux := newMux(&stubBookings{})

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?doctor_id=d-1", nil))
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?doctor_id=d-1&date=2030-01-01", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var resp slotsResponse
	if err := json.NewDecoder(rw.Body).Decode(&resp); err != nil || len(resp.Slots) != 2 {
		t.Fatalf("unexpected body %v %+v", err, resp)
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?doctor_id=d-1&date=2000-01-01", nil))
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for past date, got %d", rw.Code)
	}
}

func TestCreateRequiresSession(t *testing.T) {
	mux := newMux(&stubBookings{})
	body := `{"doctor_id":"d-1","date":"2026-03-11","time":"09:00","reason":"consult"}`

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body)))
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rw.Code)
	}
}

func TestCreatePassesSessionAndIdempotencyKey(t *testing.T) {
	stub := &stubBookings{}
	mux := newMux(stub)
	body := `{"doctor_id":"d-1","date":"2026-03-11","time":"09:00","reason":"consult"}`

	req := asPatient(httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body)))
	req.Header.Set("Idempotency-Key", "k-1")
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	if stub.lastSess.UserID != "patient-1" || stub.lastReq.IdempotencyKey != "k-1" {
		t.Fatalf("unexpected forwarded values %+v %+v", stub.lastSess, stub.lastReq)
	}
	var resp appointmentResponse
	if err := json.NewDecoder(rw.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != model.StatusScheduled || resp.Date != "2026-03-11" {
		t.Fatalf("unexpected response %+v", resp)
	}

	req = asPatient(httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body)))
	req.Header.Set("Idempotency-Key", "seen")
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || rw.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay 200, got %d", rw.Code)
	}
}

func TestCreateMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{booking.ErrValidation, http.StatusBadRequest},
		{booking.ErrSlotUnavailable, http.StatusConflict},
		{model.ErrSlotTaken, http.StatusConflict},
		{booking.ErrDoctorNotFound, http.StatusNotFound},
		{booking.ErrDependency, http.StatusServiceUnavailable},
		{booking.ErrForbidden, http.StatusForbidden},
		{booking.ErrIdempotencyMismatch, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		mux := newMux(&stubBookings{submitErr: tc.err})
		req := asPatient(httptest.NewRequest(http.MethodPost, "/api/v1/appointments",
			strings.NewReader(`{"doctor_id":"d-1","date":"2026-03-11","time":"09:00","reason":"x"}`)))
		rw := httptest.NewRecorder()
		mux.ServeHTTP(rw, req)
		if rw.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rw.Code)
		}
	}
}

func TestCreateRejectsMalformedJSON(t *testing.T) {
	mux := newMux(&stubBookings{})
	req := asPatient(httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(`{"doctor_id":`)))
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestGetDeniesStrangers(t *testing.T) {
	mux := newMux(&stubBookings{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/appt-1", nil)
	req.Header.Set(session.HeaderUserID, "patient-9")
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}
	if strings.Contains(rw.Body.String(), "patient-1") {
		t.Fatal("denied response must not leak appointment data")
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, asPatient(httptest.NewRequest(http.MethodGet, "/api/v1/appointments/missing", nil)))
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestListAndCancel(t *testing.T) {
	mux := newMux(&stubBookings{})

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, asPatient(httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)))
	if rw.Code != http.StatusOK || !strings.Contains(rw.Body.String(), "Dr. Meera Nair") {
		t.Fatalf("unexpected list response %d %s", rw.Code, rw.Body.String())
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, asPatient(httptest.NewRequest(http.MethodPost, "/api/v1/appointments/appt-1/cancel", nil)))
	if rw.Code != http.StatusOK || !strings.Contains(rw.Body.String(), `"status":"cancelled"`) {
		t.Fatalf("unexpected cancel response %d %s", rw.Code, rw.Body.String())
	}
}
