package prescriptions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/repromitra/telehealth/libs/events"
	"github.com/repromitra/telehealth/libs/outbox"
	"github.com/repromitra/telehealth/libs/rpc/bookingrpc"
	"github.com/repromitra/telehealth/libs/rpc/directoryrpc"
	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/prescription-service/internal/model"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("access denied")
	ErrInvalidState = errors.New("appointment is not completed")
	ErrDependency   = errors.New("dependency unavailable")
)

const statusCompleted = "completed"

type Appointments interface {
	GetAppointment(ctx context.Context, id string) (bookingrpc.Appointment, error)
}

type Doctors interface {
	GetDoctor(ctx context.Context, id string) (directoryrpc.Doctor, error)
}

type Store interface {
	// Create inserts p and evt atomically. It returns model.ErrExists on a
	// second prescription for the same appointment.
	Create(ctx context.Context, p model.Prescription, evt outbox.Event) (model.Prescription, error)
	Get(ctx context.Context, appointmentID string) (model.Prescription, error)
}

type Service struct {
	appts   Appointments
	doctors Doctors
	store   Store
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(appts Appointments, doctors Doctors, store Store, logger *slog.Logger) *Service {
	return &Service{appts: appts, doctors: doctors, store: store, logger: logger, now: time.Now}
}

type Draft struct {
	Diagnosis    string
	Medications  []model.Medication
	Instructions string
	FollowUpDate string
}

func (s *Service) Issue(ctx context.Context, sess session.Session, appointmentID string, d Draft) (model.Prescription, error) {
	appointmentID, ok := canonicalID(appointmentID)
	if !ok {
		return model.Prescription{}, model.ErrNotFound
	}
	appt, err := s.appts.GetAppointment(ctx, appointmentID)
	if err != nil {
		return model.Prescription{}, translate(err)
	}
	if !sess.IsDoctor() || sess.UserID != appt.DoctorID {
		return model.Prescription{}, ErrForbidden
	}
	if appt.Status != statusCompleted {
		return model.Prescription{}, fmt.Errorf("%w: status is %s", ErrInvalidState, appt.Status)
	}
	d, err = validateDraft(d, appt.Date)
	if err != nil {
		return model.Prescription{}, err
	}

	doc, err := s.doctors.GetDoctor(ctx, appt.DoctorID)
	if err != nil && !errors.Is(err, directoryrpc.ErrDoctorNotFound) {
		return model.Prescription{}, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	p := model.Prescription{
		AppointmentID:  appt.ID,
		DoctorID:       appt.DoctorID,
		PatientID:      appt.PatientID,
		DoctorName:     doc.Name,
		Specialization: doc.Specialization,
		Date:           appt.Date,
		Time:           appt.Time,
		Diagnosis:      d.Diagnosis,
		Medications:    d.Medications,
		Instructions:   d.Instructions,
		FollowUpDate:   d.FollowUpDate,
		IssuedAt:       s.now().UTC(),
	}
	evt, err := outbox.NewEvent("prescription", appt.ID, events.PrescriptionIssued, events.PrescriptionIssuedPayload{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		DoctorName:    doc.Name,
		PatientPhone:  appt.PatientPhone,
		FollowUpDate:  d.FollowUpDate,
		IssuedAt:      p.IssuedAt.Format(time.RFC3339),
	})
	if err != nil {
		return model.Prescription{}, err
	}
	return s.store.Create(ctx, p, evt)
}

// Get returns the prescription to its patient or doctor only. A missing
// prescription is reported as not found only to participants.
func (s *Service) Get(ctx context.Context, sess session.Session, appointmentID string) (model.Prescription, error) {
	appointmentID, ok := canonicalID(appointmentID)
	if !ok {
		return model.Prescription{}, model.ErrNotFound
	}
	p, err := s.store.Get(ctx, appointmentID)
	if errors.Is(err, model.ErrNotFound) {
		appt, aerr := s.appts.GetAppointment(ctx, appointmentID)
		if aerr != nil {
			return model.Prescription{}, translate(aerr)
		}
		if !sess.IsParticipant(appt.PatientID, appt.DoctorID) {
			return model.Prescription{}, ErrForbidden
		}
		return model.Prescription{}, model.ErrNotFound
	}
	if err != nil {
		return model.Prescription{}, err
	}
	if !sess.IsParticipant(p.PatientID, p.DoctorID) {
		return model.Prescription{}, ErrForbidden
	}
	return p, nil
}

func validateDraft(d Draft, appointmentDate string) (Draft, error) {
	d.Diagnosis = strings.TrimSpace(d.Diagnosis)
	d.Instructions = strings.TrimSpace(d.Instructions)
	d.FollowUpDate = strings.TrimSpace(d.FollowUpDate)

	meds := make([]model.Medication, 0, len(d.Medications))
	for i, m := range d.Medications {
		m.Name = strings.TrimSpace(m.Name)
		m.Dosage = strings.TrimSpace(m.Dosage)
		m.Frequency = strings.TrimSpace(m.Frequency)
		m.Duration = strings.TrimSpace(m.Duration)
		if m.Name == "" || m.Dosage == "" {
			return d, fmt.Errorf("%w: medication %d needs name and dosage", ErrValidation, i+1)
		}
		meds = append(meds, m)
	}
	d.Medications = meds
	if len(meds) == 0 && d.Instructions == "" {
		return d, fmt.Errorf("%w: add a medication or instructions", ErrValidation)
	}

	if d.FollowUpDate != "" {
		follow, err := time.Parse(time.DateOnly, d.FollowUpDate)
		if err != nil {
			return d, fmt.Errorf("%w: follow_up_date must be YYYY-MM-DD", ErrValidation)
		}
		if visit, err := time.Parse(time.DateOnly, appointmentDate); err == nil && !follow.After(visit) {
			return d, fmt.Errorf("%w: follow_up_date must be after the appointment", ErrValidation)
		}
	}
	return d, nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, bookingrpc.ErrNotFound):
		return model.ErrNotFound
	case errors.Is(err, bookingrpc.ErrForbidden):
		return ErrForbidden
	default:
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}
}

func canonicalID(raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return id.String(), true
}
