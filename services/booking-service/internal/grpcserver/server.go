package grpcserver

import (
	"context"
	"errors"
	"time"

	"github.com/repromitra/telehealth/libs/rpc/bookingrpc"
	"github.com/repromitra/telehealth/services/booking-service/internal/booking"
	"github.com/repromitra/telehealth/services/booking-service/internal/model"
	"google.golang.org/grpc"
)

type Appointments interface {
	GetInternal(ctx context.Context, id string) (model.Appointment, error)
	Complete(ctx context.Context, id, actorID string) (model.Appointment, error)
}

type server struct {
	appts Appointments
}

func Register(grpcServer *grpc.Server, appts Appointments) {
	bookingrpc.Register(grpcServer, &server{appts: appts})
}

func (s *server) GetAppointment(ctx context.Context, id string) (bookingrpc.Appointment, error) {
	appt, err := s.appts.GetInternal(ctx, id)
	if err != nil {
		return bookingrpc.Appointment{}, translate(err)
	}
	return toRPC(appt), nil
}

func (s *server) CompleteAppointment(ctx context.Context, id, actorID string) (bookingrpc.Appointment, error) {
	appt, err := s.appts.Complete(ctx, id, actorID)
	if err != nil {
		return bookingrpc.Appointment{}, translate(err)
	}
	return toRPC(appt), nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return bookingrpc.ErrNotFound
	case errors.Is(err, booking.ErrForbidden):
		return bookingrpc.ErrForbidden
	case errors.Is(err, booking.ErrInvalidState):
		return bookingrpc.ErrInvalidState
	default:
		return err
	}
}

func toRPC(a model.Appointment) bookingrpc.Appointment {
	out := bookingrpc.Appointment{
		ID:           a.ID,
		PatientID:    a.PatientID,
		DoctorID:     a.DoctorID,
		PatientPhone: a.PatientPhone,
		Date:         a.DateString(),
		Time:         a.Time,
		Reason:       a.Reason,
		Status:       a.Status,
	}
	if a.CompletedAt != nil {
		out.CompletedAt = a.CompletedAt.UTC().Format(time.RFC3339)
	}
	return out
}
