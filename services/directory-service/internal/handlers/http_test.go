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

	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/directory-service/internal/directory"
	"github.com/repromitra/telehealth/services/directory-service/internal/model"
)

type fakeStore struct {
	profiles map[string]model.PatientProfile
}

func (f *fakeStore) ListDoctors(context.Context) ([]model.Doctor, error) {
	return []model.Doctor{
		{ID: "d1", Name: "Dr. Asha Rao", Specialization: "Gynecology", Languages: []string{"English"}},
		{ID: "d2", Name: "Dr. Meera Das", Specialization: "Andrology", Languages: []string{"Odia"}},
	}, nil
}

func (f *fakeStore) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	all, _ := f.ListDoctors(ctx)
	for _, d := range all {
		if d.ID == id {
			return d, nil
		}
	}
	return model.Doctor{}, model.ErrNotFound
}

func (f *fakeStore) UpdateDoctor(_ context.Context, d model.Doctor) (model.Doctor, error) {
	return d, nil
}

func (f *fakeStore) GetPatientProfile(_ context.Context, id string) (model.PatientProfile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return model.PatientProfile{}, model.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) UpsertPatientProfile(_ context.Context, p model.PatientProfile) (model.PatientProfile, error) {
	f.profiles[p.UserID] = p
	return p, nil
}

func newMux() *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := directory.NewService(&fakeStore{profiles: map[string]model.PatientProfile{}}, nil, logger)
	mux := http.NewServeMux()
	New(svc, logger).Register(mux)
	return mux
}

func TestListDoctors(t *testing.T) {
	mux := newMux()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/doctors?q=meera&specialization=all", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body directory.Listing
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Doctors) != 1 || body.Doctors[0].ID != "d2" {
		t.Fatalf("unexpected doctors: %+v", body.Doctors)
	}
	if len(body.Specializations) != 2 || len(body.Languages) != 2 {
		t.Fatalf("unexpected facets: %+v %+v", body.Specializations, body.Languages)
	}
}

func TestGetDoctorNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/doctors/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestProfileRequiresSession(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestUpdatePatientProfile(t *testing.T) {
	mux := newMux()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/profile", strings.NewReader(`{"age":200}`))
	req.Header.Set(session.HeaderUserID, "p1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid age, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/profile", strings.NewReader(`{"age":31,"gender":"Female","preferred_language":"Odia"}`))
	req.Header.Set(session.HeaderUserID, "p1")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	req.Header.Set(session.HeaderUserID, "p1")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var p directory.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Patient == nil || p.Patient.Age == nil || *p.Patient.Age != 31 || p.Patient.PreferredLanguage != "Odia" {
		t.Fatalf("unexpected profile: %+v", p.Patient)
	}
}

func TestDoctorProfileUpdate(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/api/v1/profile", strings.NewReader(`{"bio":"IVF specialist","accepting_patients":false}`))
	req.Header.Set(session.HeaderUserID, "d1")
	req.Header.Set(session.HeaderRole, session.RoleDoctor)
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var p directory.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Doctor == nil || p.Doctor.Bio != "IVF specialist" || p.Doctor.AcceptingPatients {
		t.Fatalf("unexpected doctor: %+v", p.Doctor)
	}
}
