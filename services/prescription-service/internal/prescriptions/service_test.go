package prescriptions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/repromitra/telehealth/libs/events"
	"github.com/repromitra/telehealth/libs/outbox"
	"github.com/repromitra/telehealth/libs/rpc/bookingrpc"
	"github.com/repromitra/telehealth/libs/rpc/directoryrpc"
	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/prescription-service/internal/model"
)

type fakeBooking map[string]bookingrpc.Appointment

func (f fakeBooking) GetAppointment(_ context.Context, id string) (bookingrpc.Appointment, error) {
	a, ok := f[id]
	if !ok {
		return bookingrpc.Appointment{}, bookingrpc.ErrNotFound
	}
	return a, nil
}

type fakeDoctors struct{ err error }

func (f fakeDoctors) GetDoctor(_ context.Context, id string) (directoryrpc.Doctor, error) {
	if f.err != nil {
		return directoryrpc.Doctor{}, f.err
	}
	return directoryrpc.Doctor{ID: id, Name: "Dr. Asha Rao", Specialization: "Gynecology"}, nil
}

type memoryStore struct {
	rows   map[string]model.Prescription
	events []outbox.Event
}

func (m *memoryStore) Create(_ context.Context, p model.Prescription, evt outbox.Event) (model.Prescription, error) {
	if _, ok := m.rows[p.AppointmentID]; ok {
		return model.Prescription{}, model.ErrExists
	}
	m.rows[p.AppointmentID] = p
	m.events = append(m.events, evt)
	return p, nil
}

func (m *memoryStore) Get(_ context.Context, id string) (model.Prescription, error) {
	p, ok := m.rows[id]
	if !ok {
		return model.Prescription{}, model.ErrNotFound
	}
	return p, nil
}

const (
	apptDone = "5b0e8a52-9a3c-4c1e-8d7e-1f2a3b4c5d01"
	apptOpen = "5b0e8a52-9a3c-4c1e-8d7e-1f2a3b4c5d02"
)

var (
	patient  = session.Session{UserID: "p1", Role: session.RolePatient}
	doctor   = session.Session{UserID: "d1", Role: session.RoleDoctor}
	other    = session.Session{UserID: "d2", Role: session.RoleDoctor}
	stranger = session.Session{UserID: "x9", Role: session.RolePatient}
)

func newService(doctors Doctors) (*Service, *memoryStore) {
	booking := fakeBooking{
		apptDone: {ID: apptDone, PatientID: "p1", DoctorID: "d1", PatientPhone: "+919876543210", Date: "2026-03-10", Time: "10:00", Status: "completed"},
		apptOpen: {ID: apptOpen, PatientID: "p1", DoctorID: "d1", Date: "2026-03-11", Time: "11:00", Status: "scheduled"},
	}
	store := &memoryStore{rows: map[string]model.Prescription{}}
	svc := NewService(booking, doctors, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC) }
	return svc, store
}

var validDraft = Draft{
	Diagnosis:    " PCOS ",
	Medications:  []model.Medication{{Name: "Metformin", Dosage: "500mg", Frequency: "twice daily"}},
	Instructions: "Walk 30 minutes a day.",
	FollowUpDate: "2026-04-10",
}

func TestIssueByDoctorEmitsEvent(t *testing.T) {
	svc, store := newService(fakeDoctors{})
	p, err := svc.Issue(context.Background(), doctor, apptDone, validDraft)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if p.DoctorName != "Dr. Asha Rao" || p.Specialization != "Gynecology" || p.Diagnosis != "PCOS" {
		t.Fatalf("unexpected prescription: %+v", p)
	}
	if len(store.events) != 1 || store.events[0].EventType != events.PrescriptionIssued {
		t.Fatalf("expected one issued event, got %+v", store.events)
	}
	var payload events.PrescriptionIssuedPayload
	if err := json.Unmarshal(store.events[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.PatientPhone != "+919876543210" || payload.FollowUpDate != "2026-04-10" {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	if _, err := svc.Issue(context.Background(), doctor, apptDone, validDraft); !errors.Is(err, model.ErrExists) {
		t.Fatalf("expected ErrExists on second issue, got %v", err)
	}
}

func TestIssueRejections(t *testing.T) {
	svc, _ := newService(fakeDoctors{})
	ctx := context.Background()

	if _, err := svc.Issue(ctx, patient, apptDone, validDraft); !errors.Is(err, ErrForbidden) {
		t.Fatalf("patient: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Issue(ctx, other, apptDone, validDraft); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other doctor: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Issue(ctx, doctor, apptOpen, validDraft); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("scheduled: expected ErrInvalidState, got %v", err)
	}
	if _, err := svc.Issue(ctx, doctor, "missing", validDraft); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("missing: expected ErrNotFound, got %v", err)
	}

	bad := []Draft{
		{Medications: []model.Medication{{Name: "Metformin"}}},
		{},
		{Instructions: "rest", FollowUpDate: "10/04/2026"},
		{Instructions: "rest", FollowUpDate: "2026-03-10"},
	}
	for i, d := range bad {
		if _, err := svc.Issue(ctx, doctor, apptDone, d); !errors.Is(err, ErrValidation) {
			t.Fatalf("draft %d: expected ErrValidation, got %v", i, err)
		}
	}
}

func TestIssueDirectoryFailure(t *testing.T) {
	svc, _ := newService(fakeDoctors{err: errors.New("unavailable")})
	if _, err := svc.Issue(context.Background(), doctor, apptDone, validDraft); !errors.Is(err, ErrDependency) {
		t.Fatalf("expected ErrDependency, got %v", err)
	}
}

func TestGetAccess(t *testing.T) {
	svc, _ := newService(fakeDoctors{})
	ctx := context.Background()

	if _, err := svc.Get(ctx, patient, apptDone); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("before issue: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Get(ctx, stranger, apptDone); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger before issue: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Issue(ctx, doctor, apptDone, validDraft); err != nil {
		t.Fatalf("issue: %v", err)
	}
	for _, s := range []session.Session{patient, doctor} {
		if _, err := svc.Get(ctx, s, apptDone); err != nil {
			t.Fatalf("%s: get: %v", s.UserID, err)
		}
	}
	if _, err := svc.Get(ctx, stranger, apptDone); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger: expected ErrForbidden, got %v", err)
	}
}

func TestMalformedAppointmentIDIsNotFound(t *testing.T) {
	svc, store := newService(fakeDoctors{})
	ctx := context.Background()

	if _, err := svc.Get(ctx, patient, "a1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Issue(ctx, doctor, "a1", validDraft); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("issue: expected ErrNotFound, got %v", err)
	}
	if len(store.rows) != 0 {
		t.Fatalf("nothing should be stored, got %d rows", len(store.rows))
	}
}
