// Package bookingrpc is the BookingService gRPC contract. Consultation and
// prescription services use it to authorize access to an appointment and to
// mark it completed when the video call ends.
package bookingrpc

import (
	"context"
	"errors"

	"github.com/repromitra/telehealth/libs/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName               = "repromitra.booking.v1.BookingService"
	GetAppointmentMethod      = "/" + ServiceName + "/GetAppointment"
	CompleteAppointmentMethod = "/" + ServiceName + "/CompleteAppointment"
)

var (
	ErrNotFound     = errors.New("appointment not found")
	ErrForbidden    = errors.New("not a participant of this appointment")
	ErrInvalidState = errors.New("appointment is not in a valid state for this operation")
)

var errorMappings = []rpc.ErrorMapping{
	{Err: ErrNotFound, Code: codes.NotFound},
	{Err: ErrForbidden, Code: codes.PermissionDenied},
	{Err: ErrInvalidState, Code: codes.FailedPrecondition},
}

type Appointment struct {
	ID           string
	PatientID    string
	DoctorID     string
	PatientPhone string
	Date         string
	Time         string
	Reason       string
	Status       string
	CompletedAt  string
}

// Server is implemented by booking-service. Complete must be idempotent for
// an appointment that is already completed.
type Server interface {
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	CompleteAppointment(ctx context.Context, id, actorID string) (Appointment, error)
}

func Register(s grpc.ServiceRegistrar, impl Server) {
	s.RegisterService(&serviceDesc, impl)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAppointment", Handler: getAppointmentHandler},
		{MethodName: "CompleteAppointment", Handler: completeAppointmentHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "repromitra/booking/v1",
}

func getAppointmentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		appt, err := srv.(Server).GetAppointment(ctx, req.(*wrapperspb.StringValue).GetValue())
		if err != nil {
			return nil, rpc.ToStatus(err, errorMappings...)
		}
		return encodeAppointment(appt)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: GetAppointmentMethod}, call)
}

func completeAppointmentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		r := req.(*structpb.Struct)
		appt, err := srv.(Server).CompleteAppointment(ctx, rpc.String(r, "appointment_id"), rpc.String(r, "actor_id"))
		if err != nil {
			return nil, rpc.ToStatus(err, errorMappings...)
		}
		return encodeAppointment(appt)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: CompleteAppointmentMethod}, call)
}

type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, GetAppointmentMethod, wrapperspb.String(id), out); err != nil {
		return Appointment{}, rpc.FromStatus(err, errorMappings...)
	}
	return decodeAppointment(out), nil
}

func (c *Client) CompleteAppointment(ctx context.Context, id, actorID string) (Appointment, error) {
	in, err := structpb.NewStruct(map[string]any{"appointment_id": id, "actor_id": actorID})
	if err != nil {
		return Appointment{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, CompleteAppointmentMethod, in, out); err != nil {
		return Appointment{}, rpc.FromStatus(err, errorMappings...)
	}
	return decodeAppointment(out), nil
}

func encodeAppointment(a Appointment) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":            a.ID,
		"patient_id":    a.PatientID,
		"doctor_id":     a.DoctorID,
		"patient_phone": a.PatientPhone,
		"date":          a.Date,
		"time":          a.Time,
		"reason":        a.Reason,
		"status":        a.Status,
		"completed_at":  a.CompletedAt,
	})
}

func decodeAppointment(s *structpb.Struct) Appointment {
	return Appointment{
		ID:           rpc.String(s, "id"),
		PatientID:    rpc.String(s, "patient_id"),
		DoctorID:     rpc.String(s, "doctor_id"),
		PatientPhone: rpc.String(s, "patient_phone"),
		Date:         rpc.String(s, "date"),
		Time:         rpc.String(s, "time"),
		Reason:       rpc.String(s, "reason"),
		Status:       rpc.String(s, "status"),
		CompletedAt:  rpc.String(s, "completed_at"),
	}
}
