package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/repromitra/telehealth/libs/events"
	"github.com/repromitra/telehealth/libs/outbox"
	"github.com/repromitra/telehealth/libs/rpc/directoryrpc"
	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/booking-service/internal/availability"
	"github.com/repromitra/telehealth/services/booking-service/internal/model"
)

// memoryStore mimics the Postgres store, including the partial unique index
// on (doctor_id, date, time) for non-cancelled rows.
type memoryStore struct {
	mu         sync.Mutex
	seq        int
	appts      map[string]model.Appointment
	idem       map[string]idemEntry
	events     []outbox.Event
	staleReads bool
	failCreate error
}

type idemEntry struct {
	appointmentID string
	fingerprint   string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{appts: map[string]model.Appointment{}, idem: map[string]idemEntry{}}
}

type memoryTx struct {
	s      *memoryStore
	appts  map[string]model.Appointment
	idem   map[string]idemEntry
	events []outbox.Event
}

func (m *memoryStore) InTx(_ context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{s: m, appts: map[string]model.Appointment{}, idem: map[string]idemEntry{}}
	for k, v := range m.appts {
		tx.appts[k] = v
	}
	for k, v := range m.idem {
		tx.idem[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.appts = tx.appts
	m.idem = tx.idem
	m.events = append(m.events, tx.events...)
	return nil
}

func booked(appts map[string]model.Appointment, doctorID string, date time.Time) []string {
	var out []string
	for _, a := range appts {
		if a.DoctorID == doctorID && a.Date.Equal(date) && a.Status != model.StatusCancelled {
			out = append(out, a.Time)
		}
	}
	return out
}

func (m *memoryStore) BookedTimes(_ context.Context, doctorID string, date time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return booked(m.appts, doctorID, date), nil
}

func (m *memoryStore) Get(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (m *memoryStore) list(match func(model.Appointment) bool) []model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Time > out[j].Time
	})
	return out
}

func (m *memoryStore) ListForPatient(_ context.Context, patientID string, _ int) ([]model.Appointment, error) {
	return m.list(func(a model.Appointment) bool { return a.PatientID == patientID }), nil
}

func (m *memoryStore) ListForDoctor(_ context.Context, doctorID string, _ int) ([]model.Appointment, error) {
	return m.list(func(a model.Appointment) bool { return a.DoctorID == doctorID }), nil
}

func (t *memoryTx) LockIdempotencyKey(_ context.Context, patientID, key, fingerprint string) (string, string, error) {
	e, ok := t.idem[patientID+"/"+key]
	if !ok {
		e = idemEntry{fingerprint: fingerprint}
		t.idem[patientID+"/"+key] = e
	}
	return e.appointmentID, e.fingerprint, nil
}

func (t *memoryTx) FinalizeIdempotency(_ context.Context, patientID, key, appointmentID string) error {
	e := t.idem[patientID+"/"+key]
	e.appointmentID = appointmentID
	t.idem[patientID+"/"+key] = e
	return nil
}

func (t *memoryTx) LockDoctorDay(context.Context, string, time.Time) error { return nil }

func (t *memoryTx) BookedTimes(_ context.Context, doctorID string, date time.Time) ([]string, error) {
	if t.s.staleReads {
		return nil, nil
	}
	return booked(t.appts, doctorID, date), nil
}

func (t *memoryTx) Create(_ context.Context, appt *model.Appointment) error {
	if t.s.failCreate != nil {
		return t.s.failCreate
	}
	for _, a := range t.appts {
		if a.DoctorID == appt.DoctorID && a.Date.Equal(appt.Date) && a.Time == appt.Time && a.Status != model.StatusCancelled {
			return model.ErrSlotTaken
		}
	}
	t.s.seq++
	appt.ID = fmt.Sprintf("00000000-0000-4000-8000-%012d", t.s.seq)
	appt.CreatedAt = time.Now()
	t.appts[appt.ID] = *appt
	return nil
}

func (t *memoryTx) GetForUpdate(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.appts[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (t *memoryTx) Cancel(_ context.Context, id, reason string) (time.Time, error) {
	a := t.appts[id]
	now := time.Now()
	a.Status = model.StatusCancelled
	a.CancelReason = reason
	a.CancelledAt = &now
	t.appts[id] = a
	return now, nil
}

func (t *memoryTx) Complete(_ context.Context, id string) (time.Time, error) {
	a := t.appts[id]
	now := time.Now()
	a.Status = model.StatusCompleted
	a.CompletedAt = &now
	t.appts[id] = a
	return now, nil
}

func (t *memoryTx) AddEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

type stubDirectory map[string]directoryrpc.Doctor

func (d stubDirectory) GetDoctor(_ context.Context, id string) (directoryrpc.Doctor, error) {
	doc, ok := d[id]
	if !ok {
		return directoryrpc.Doctor{}, directoryrpc.ErrDoctorNotFound
	}
	return doc, nil
}

const (
	doctorOneID = "7c9e6679-7425-40de-944b-e07fc1f90ae1"
	doctorTwoID = "7c9e6679-7425-40de-944b-e07fc1f90ae2"
	unknownID   = "7c9e6679-7425-40de-944b-e07fc1f90ae9"
)

var (
	patient  = session.Session{UserID: "patient-1", Role: session.RolePatient, Pseudonym: "User#1234", Phone: "+919000000001"}
	doctor   = session.Session{UserID: doctorOneID, Role: session.RoleDoctor}
	fixedNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
)

func newTestService(store *memoryStore) *Service {
	svc := NewService(store, stubDirectory{
		doctorOneID: {ID: doctorOneID, Name: "Dr. Meera Nair", Specialization: "Gynecology", AcceptingPatients: true},
		doctorTwoID: {ID: doctorTwoID, Name: "Dr. Off Duty", AcceptingPatients: false},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Grid: availability.DefaultGrid(), Location: time.UTC})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func validRequest() SubmitRequest {
	return SubmitRequest{DoctorID: doctorOneID, Date: "2026-03-11", Time: "10:00", Reason: "Follow-up on cycle irregularity"}
}

func TestSubmitRejectsMissingFieldsWithoutCreatingRecord(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	cases := map[string]func(*SubmitRequest){
		"empty reason": func(r *SubmitRequest) { r.Reason = "   " },
		"missing date": func(r *SubmitRequest) { r.Date = "" },
		"missing time": func(r *SubmitRequest) { r.Time = "" },
		"off grid":     func(r *SubmitRequest) { r.Time = "10:15" },
		"bad date":     func(r *SubmitRequest) { r.Date = "11/03/2026" },
		"past date":    func(r *SubmitRequest) { r.Date = "2026-03-09" },
	}
	for name, mutate := range cases {
		req := validRequest()
		mutate(&req)
		if _, _, err := svc.Submit(context.Background(), patient, req); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", name, err)
		}
	}
	if len(store.appts) != 0 || len(store.events) != 0 {
		t.Fatalf("expected no records, got %d appointments %d events", len(store.appts), len(store.events))
	}
}

func TestSubmitCreatesScheduledAppointmentAndEvent(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	appt, replayed, err := svc.Submit(context.Background(), patient, validRequest())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if replayed {
		t.Fatal("first submission must not be a replay")
	}
	if appt.Status != model.StatusScheduled || appt.PatientID != patient.UserID || appt.PatientPhone != patient.Phone {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if len(store.events) != 1 || store.events[0].EventType != events.AppointmentBooked {
		t.Fatalf("expected one booked event, got %+v", store.events)
	}

	slots, err := svc.Slots(context.Background(), doctorOneID, "2026-03-11")
	if err != nil {
		t.Fatalf("Slots failed: %v", err)
	}
	for _, s := range slots {
		if s == "10:00" {
			t.Fatal("booked slot still offered")
		}
	}
	if len(slots) != 15 {
		t.Fatalf("expected 15 open slots, got %d", len(slots))
	}
}

func TestSecondSubmissionForSameSlotConflicts(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	other := session.Session{UserID: "patient-2", Role: session.RolePatient}

	if _, _, err := svc.Submit(context.Background(), patient, validRequest()); err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	if _, _, err := svc.Submit(context.Background(), other, validRequest()); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	// A writer that read booked times before the first commit is stopped by the index.
	store.staleReads = true
	if _, _, err := svc.Submit(context.Background(), other, validRequest()); !errors.Is(err, model.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if len(store.appts) != 1 {
		t.Fatalf("expected exactly one appointment, got %d", len(store.appts))
	}
}

func TestConcurrentSubmissionsBookOnce(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := session.Session{UserID: fmt.Sprintf("patient-%d", i), Role: session.RolePatient}
			_, _, err := svc.Submit(context.Background(), sess, validRequest())
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		if !errors.Is(err, ErrSlotUnavailable) && !errors.Is(err, model.ErrSlotTaken) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one success, got %d", ok)
	}
}

func TestSubmitIdempotencyReplays(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	req := validRequest()
	req.IdempotencyKey = "key-1"

	first, _, err := svc.Submit(context.Background(), patient, req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	second, replayed, err := svc.Submit(context.Background(), patient, req)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !replayed || second.ID != first.ID {
		t.Fatalf("expected replay of %s, got %s replayed=%v", first.ID, second.ID, replayed)
	}
	if len(store.events) != 1 {
		t.Fatalf("replay must not emit events, got %d", len(store.events))
	}

	moved := req
	moved.Time = "11:00"
	if _, _, err := svc.Submit(context.Background(), patient, moved); !errors.Is(err, ErrIdempotencyMismatch) {
		t.Fatalf("expected ErrIdempotencyMismatch for a different slot, got %v", err)
	}
	if len(store.appts) != 1 {
		t.Fatalf("mismatched key must not book, got %d appointments", len(store.appts))
	}
}

func TestMalformedIDsAreNotFoundOrInvalid(t *testing.T) {
	svc := newTestService(newMemoryStore())

	if _, err := svc.Get(context.Background(), patient, "' OR 1=1 --"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Cancel(context.Background(), patient, "appt-1", ""); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Cancel: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Complete(context.Background(), "appt-1", ""); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Complete: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Slots(context.Background(), "doctor-1", "2026-03-11"); !errors.Is(err, ErrValidation) {
		t.Fatalf("Slots: expected ErrValidation, got %v", err)
	}
	req := validRequest()
	req.DoctorID = "doctor-1"
	if _, _, err := svc.Submit(context.Background(), patient, req); !errors.Is(err, ErrValidation) {
		t.Fatalf("Submit: expected ErrValidation, got %v", err)
	}
}

func TestSubmitDoctorChecks(t *testing.T) {
	svc := newTestService(newMemoryStore())

	req := validRequest()
	req.DoctorID = unknownID
	if _, _, err := svc.Submit(context.Background(), patient, req); !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("expected ErrDoctorNotFound, got %v", err)
	}
	req.DoctorID = doctorTwoID
	if _, _, err := svc.Submit(context.Background(), patient, req); !errors.Is(err, ErrDoctorUnavailable) {
		t.Fatalf("expected ErrDoctorUnavailable, got %v", err)
	}
	if _, _, err := svc.Submit(context.Background(), doctor, validRequest()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for doctor session, got %v", err)
	}
}

func TestBackendFailureLeavesNoPartialState(t *testing.T) {
	store := newMemoryStore()
	store.failCreate = errors.New("connection reset")
	svc := newTestService(store)

	if _, _, err := svc.Submit(context.Background(), patient, validRequest()); err == nil {
		t.Fatal("expected error")
	}
	if len(store.appts) != 0 || len(store.events) != 0 {
		t.Fatal("expected rollback")
	}
}

func TestGetDeniesNonParticipants(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	appt, _, err := svc.Submit(context.Background(), patient, validRequest())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if _, err := svc.Get(context.Background(), doctor, appt.ID); err != nil {
		t.Fatalf("doctor should see appointment: %v", err)
	}
	stranger := session.Session{UserID: "patient-9", Role: session.RolePatient}
	if _, err := svc.Get(context.Background(), stranger, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Get(context.Background(), patient, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelFreesSlotAndIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	appt, _, err := svc.Submit(context.Background(), patient, validRequest())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	cancelled, err := svc.Cancel(context.Background(), patient, appt.ID, "feeling better")
	if err != nil || cancelled.Status != model.StatusCancelled {
		t.Fatalf("Cancel failed: %v %+v", err, cancelled)
	}
	if _, err := svc.Cancel(context.Background(), patient, appt.ID, ""); err != nil {
		t.Fatalf("second cancel should be a no-op: %v", err)
	}
	if got := len(store.events); got != 2 {
		t.Fatalf("expected booked+cancelled events, got %d", got)
	}

	other := session.Session{UserID: "patient-2", Role: session.RolePatient}
	if _, _, err := svc.Submit(context.Background(), other, validRequest()); err != nil {
		t.Fatalf("slot should be free after cancel: %v", err)
	}
}

func TestCompleteTransitions(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	appt, _, err := svc.Submit(context.Background(), patient, validRequest())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if _, err := svc.Complete(context.Background(), appt.ID, "stranger"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	done, err := svc.Complete(context.Background(), appt.ID, doctor.UserID)
	if err != nil || done.Status != model.StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("Complete failed: %v %+v", err, done)
	}
	if _, err := svc.Complete(context.Background(), appt.ID, patient.UserID); err != nil {
		t.Fatalf("second complete should be a no-op: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), patient, appt.ID, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState cancelling completed appointment, got %v", err)
	}
}

func TestListEnrichesDoctorAndOrders(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	for _, slot := range []string{"09:00", "15:30"} {
		req := validRequest()
		req.Time = slot
		if _, _, err := svc.Submit(context.Background(), patient, req); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	items, err := svc.List(context.Background(), patient, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 2 || items[0].Time != "15:30" || items[0].DoctorName != "Dr. Meera Nair" {
		t.Fatalf("unexpected dashboard %+v", items)
	}

	docItems, err := svc.List(context.Background(), doctor, 0)
	if err != nil || len(docItems) != 2 {
		t.Fatalf("doctor dashboard: %v %d", err, len(docItems))
	}
}
