// Package booking owns the appointment lifecycle: slot lookup, submission with
// conflict checks, dashboard listing, cancellation and completion.
package booking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/repromitra/telehealth/libs/events"
	"github.com/repromitra/telehealth/libs/outbox"
	"github.com/repromitra/telehealth/libs/rpc/directoryrpc"
	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/booking-service/internal/availability"
	"github.com/repromitra/telehealth/services/booking-service/internal/model"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("access denied")
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrDoctorUnavailable = errors.New("doctor is not accepting patients")
	ErrSlotUnavailable   = errors.New("time slot is no longer available")
	ErrInvalidState      = errors.New("appointment cannot transition from its current status")
	ErrDependency        = errors.New("dependency unavailable")
	// ErrIdempotencyMismatch means an Idempotency-Key was reused for a
	// different doctor or slot.
	ErrIdempotencyMismatch = errors.New("idempotency key reused with a different request")
)

// Tx is the set of writes that run inside one database transaction.
type Tx interface {
	// LockIdempotencyKey claims key for patientID with the request
	// fingerprint. When the key already exists it returns the stored
	// fingerprint and the appointment booked under it.
	LockIdempotencyKey(ctx context.Context, patientID, key, fingerprint string) (appointmentID, storedFingerprint string, err error)
	FinalizeIdempotency(ctx context.Context, patientID, key, appointmentID string) error
	LockDoctorDay(ctx context.Context, doctorID string, date time.Time) error
	BookedTimes(ctx context.Context, doctorID string, date time.Time) ([]string, error)
	Create(ctx context.Context, appt *model.Appointment) error
	GetForUpdate(ctx context.Context, id string) (model.Appointment, error)
	Cancel(ctx context.Context, id, reason string) (time.Time, error)
	Complete(ctx context.Context, id string) (time.Time, error)
	AddEvent(ctx context.Context, evt outbox.Event) error
}

type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	BookedTimes(ctx context.Context, doctorID string, date time.Time) ([]string, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	ListForPatient(ctx context.Context, patientID string, limit int) ([]model.Appointment, error)
	ListForDoctor(ctx context.Context, doctorID string, limit int) ([]model.Appointment, error)
}

type Directory interface {
	GetDoctor(ctx context.Context, id string) (directoryrpc.Doctor, error)
}

type Service struct {
	store     Store
	directory Directory
	grid      availability.Grid
	loc       *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

type Config struct {
	Grid     availability.Grid
	Location *time.Location
}

func NewService(store Store, directory Directory, logger *slog.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		store:     store,
		directory: directory,
		grid:      cfg.Grid,
		loc:       cfg.Location,
		logger:    logger,
		now:       time.Now,
	}
}

// Slots returns the open labels for doctorID on date.
func (s *Service) Slots(ctx context.Context, doctorID, rawDate string) ([]string, error) {
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		return nil, fmt.Errorf("%w: doctor_id is required", ErrValidation)
	}
	doctorID, ok := canonicalID(doctorID)
	if !ok {
		return nil, fmt.Errorf("%w: doctor_id is not a valid id", ErrValidation)
	}
	date, err := availability.ParseDate(strings.TrimSpace(rawDate), s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	booked, err := s.store.BookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	now := s.now().In(s.loc)
	slots, err := s.grid.AvailableSlots(date, booked, now, availability.WithNow(now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return slots, nil
}

type SubmitRequest struct {
	DoctorID       string
	Date           string
	Time           string
	Reason         string
	IdempotencyKey string
}

// Submit books a slot for the session's patient. The slot is re-validated
// against booked times read inside the write transaction; a concurrent
// writer that slips past that check is stopped by the unique index and
// surfaces as model.ErrSlotTaken.
func (s *Service) Submit(ctx context.Context, sess session.Session, req SubmitRequest) (model.Appointment, bool, error) {
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	req.Reason = strings.TrimSpace(req.Reason)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	switch {
	case req.DoctorID == "":
		return model.Appointment{}, false, fmt.Errorf("%w: doctor_id is required", ErrValidation)
	case req.Date == "":
		return model.Appointment{}, false, fmt.Errorf("%w: date is required", ErrValidation)
	case req.Time == "":
		return model.Appointment{}, false, fmt.Errorf("%w: time is required", ErrValidation)
	case req.Reason == "":
		return model.Appointment{}, false, fmt.Errorf("%w: reason is required", ErrValidation)
	}
	doctorID, ok := canonicalID(req.DoctorID)
	if !ok {
		return model.Appointment{}, false, fmt.Errorf("%w: doctor_id is not a valid id", ErrValidation)
	}
	req.DoctorID = doctorID
	if sess.Role != session.RolePatient {
		return model.Appointment{}, false, fmt.Errorf("%w: only patients can book appointments", ErrForbidden)
	}
	if sess.UserID == req.DoctorID {
		return model.Appointment{}, false, fmt.Errorf("%w: cannot book with yourself", ErrValidation)
	}

	date, err := availability.ParseDate(req.Date, s.loc)
	if err != nil {
		return model.Appointment{}, false, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !s.grid.Contains(req.Time) {
		return model.Appointment{}, false, fmt.Errorf("%w: %q is not a bookable slot", ErrValidation, req.Time)
	}
	now := s.now().In(s.loc)
	if _, err := s.grid.AvailableSlots(date, nil, now); err != nil {
		return model.Appointment{}, false, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	doctor, err := s.directory.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, directoryrpc.ErrDoctorNotFound) {
			return model.Appointment{}, false, ErrDoctorNotFound
		}
		return model.Appointment{}, false, fmt.Errorf("%w: directory: %v", ErrDependency, err)
	}
	if !doctor.AcceptingPatients {
		return model.Appointment{}, false, ErrDoctorUnavailable
	}

	var (
		appt     model.Appointment
		replayed bool
	)
	err = s.store.InTx(ctx, func(tx Tx) error {
		if req.IdempotencyKey != "" {
			fingerprint := requestFingerprint(req.DoctorID, date, req.Time)
			existingID, stored, err := tx.LockIdempotencyKey(ctx, sess.UserID, req.IdempotencyKey, fingerprint)
			if err != nil {
				return err
			}
			if stored != fingerprint {
				return ErrIdempotencyMismatch
			}
			if existingID != "" {
				appt, err = tx.GetForUpdate(ctx, existingID)
				replayed = err == nil
				return err
			}
		}

		if err := tx.LockDoctorDay(ctx, req.DoctorID, date); err != nil {
			return err
		}
		booked, err := tx.BookedTimes(ctx, req.DoctorID, date)
		if err != nil {
			return err
		}
		open, err := s.grid.AvailableSlots(date, booked, now, availability.WithNow(now))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if !slices.Contains(open, req.Time) {
			return ErrSlotUnavailable
		}

		appt = model.Appointment{
			PatientID:    sess.UserID,
			DoctorID:     req.DoctorID,
			Date:         date,
			Time:         req.Time,
			Reason:       req.Reason,
			Status:       model.StatusScheduled,
			PatientPhone: sess.Phone,
		}
		if err := tx.Create(ctx, &appt); err != nil {
			return err
		}

		evt, err := outbox.NewEvent("appointment", appt.ID, events.AppointmentBooked, s.payload(appt, doctor.Name, now))
		if err != nil {
			return err
		}
		if err := tx.AddEvent(ctx, evt); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			return tx.FinalizeIdempotency(ctx, sess.UserID, req.IdempotencyKey, appt.ID)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, false, err
	}
	if !replayed {
		s.logger.Info("appointment booked", "appointment_id", appt.ID, "doctor_id", appt.DoctorID, "date", appt.DateString(), "time", appt.Time)
	}
	return appt, replayed, nil
}

// DashboardItem is an appointment with the doctor's display fields attached.
type DashboardItem struct {
	model.Appointment
	DoctorName     string
	Specialization string
}

// List returns the caller's appointments, newest first. Patients see their
// own bookings and doctors see the ones assigned to them.
func (s *Service) List(ctx context.Context, sess session.Session, limit int) ([]DashboardItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var (
		appts []model.Appointment
		err   error
	)
	if sess.IsDoctor() {
		appts, err = s.store.ListForDoctor(ctx, sess.UserID, limit)
	} else {
		appts, err = s.store.ListForPatient(ctx, sess.UserID, limit)
	}
	if err != nil {
		return nil, err
	}

	doctors := map[string]directoryrpc.Doctor{}
	items := make([]DashboardItem, 0, len(appts))
	for _, a := range appts {
		d, ok := doctors[a.DoctorID]
		if !ok {
			d, err = s.directory.GetDoctor(ctx, a.DoctorID)
			if err != nil {
				s.logger.Warn("doctor lookup failed", "doctor_id", a.DoctorID, "err", err)
			}
			doctors[a.DoctorID] = d
		}
		items = append(items, DashboardItem{Appointment: a, DoctorName: d.Name, Specialization: d.Specialization})
	}
	return items, nil
}

// Get returns the appointment only to its patient or doctor.
func (s *Service) Get(ctx context.Context, sess session.Session, id string) (model.Appointment, error) {
	id, ok := canonicalID(id)
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !sess.IsParticipant(appt.PatientID, appt.DoctorID) {
		return model.Appointment{}, ErrForbidden
	}
	return appt, nil
}

// GetInternal loads an appointment without a session check. It backs the
// gRPC API, whose callers authorize participants themselves.
func (s *Service) GetInternal(ctx context.Context, id string) (model.Appointment, error) {
	id, ok := canonicalID(id)
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// Cancel frees the slot. Cancelling twice returns the cancelled appointment.
func (s *Service) Cancel(ctx context.Context, sess session.Session, id, reason string) (model.Appointment, error) {
	id, ok := canonicalID(id)
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	var appt model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		appt, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !sess.IsParticipant(appt.PatientID, appt.DoctorID) {
			return ErrForbidden
		}
		if appt.IsTerminal() {
			if appt.Status == model.StatusCancelled {
				return nil
			}
			return ErrInvalidState
		}

		cancelledAt, err := tx.Cancel(ctx, appt.ID, strings.TrimSpace(reason))
		if err != nil {
			return err
		}
		appt.Status = model.StatusCancelled
		appt.CancelReason = strings.TrimSpace(reason)
		appt.CancelledAt = &cancelledAt

		evt, err := outbox.NewEvent("appointment", appt.ID, events.AppointmentCancelled, s.payload(appt, "", cancelledAt))
		if err != nil {
			return err
		}
		return tx.AddEvent(ctx, evt)
	})
	return appt, err
}

// Complete marks a scheduled appointment completed. actorID, when set, must
// be a participant. Completing twice is a no-op.
func (s *Service) Complete(ctx context.Context, id, actorID string) (model.Appointment, error) {
	id, ok := canonicalID(id)
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	var appt model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		appt, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if actorID != "" && actorID != appt.PatientID && actorID != appt.DoctorID {
			return ErrForbidden
		}
		if appt.IsTerminal() {
			if appt.Status == model.StatusCompleted {
				return nil
			}
			return ErrInvalidState
		}

		completedAt, err := tx.Complete(ctx, appt.ID)
		if err != nil {
			return err
		}
		appt.Status = model.StatusCompleted
		appt.CompletedAt = &completedAt

		evt, err := outbox.NewEvent("appointment", appt.ID, events.AppointmentCompleted, s.payload(appt, "", completedAt))
		if err != nil {
			return err
		}
		return tx.AddEvent(ctx, evt)
	})
	if err == nil {
		s.logger.Info("appointment completed", "appointment_id", appt.ID)
	}
	return appt, err
}

func (s *Service) payload(a model.Appointment, doctorName string, at time.Time) events.AppointmentPayload {
	return events.AppointmentPayload{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		DoctorName:    doctorName,
		PatientPhone:  a.PatientPhone,
		Date:          a.DateString(),
		Time:          a.Time,
		Status:        a.Status,
		Reason:        a.Reason,
		CancelReason:  a.CancelReason,
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
}

// canonicalID parses raw as a UUID so lookups can compare against the
// native uuid columns.
func canonicalID(raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func requestFingerprint(doctorID string, date time.Time, slot string) string {
	sum := sha256.Sum256([]byte(doctorID + "|" + date.Format("2006-01-02") + "|" + slot))
	return hex.EncodeToString(sum[:])
}
