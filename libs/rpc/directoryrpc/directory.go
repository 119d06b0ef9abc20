// Package directoryrpc is the DirectoryService gRPC contract used by booking
// to confirm that a doctor exists before accepting an appointment.
package directoryrpc

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
	ServiceName     = "repromitra.directory.v1.DirectoryService"
	GetDoctorMethod = "/" + ServiceName + "/GetDoctor"
)

var ErrDoctorNotFound = errors.New("doctor not found")

var errorMappings = []rpc.ErrorMapping{
	{Err: ErrDoctorNotFound, Code: codes.NotFound},
}

type Doctor struct {
	ID                string
	Name              string
	Specialization    string
	Languages         []string
	Verified          bool
	AcceptingPatients bool
}

// Server is implemented by directory-service.
type Server interface {
	GetDoctor(ctx context.Context, id string) (Doctor, error)
}

func Register(s grpc.ServiceRegistrar, impl Server) {
	s.RegisterService(&serviceDesc, impl)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetDoctor", Handler: getDoctorHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "repromitra/directory/v1",
}

func getDoctorHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		d, err := srv.(Server).GetDoctor(ctx, req.(*wrapperspb.StringValue).GetValue())
		if err != nil {
			return nil, rpc.ToStatus(err, errorMappings...)
		}
		return encodeDoctor(d)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: GetDoctorMethod}, call)
}

type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) GetDoctor(ctx context.Context, id string) (Doctor, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, GetDoctorMethod, wrapperspb.String(id), out); err != nil {
		return Doctor{}, rpc.FromStatus(err, errorMappings...)
	}
	return decodeDoctor(out), nil
}

func encodeDoctor(d Doctor) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":                 d.ID,
		"name":               d.Name,
		"specialization":     d.Specialization,
		"languages":          rpc.List(d.Languages),
		"verified":           d.Verified,
		"accepting_patients": d.AcceptingPatients,
	})
}

func decodeDoctor(s *structpb.Struct) Doctor {
	return Doctor{
		ID:                rpc.String(s, "id"),
		Name:              rpc.String(s, "name"),
		Specialization:    rpc.String(s, "specialization"),
		Languages:         rpc.Strings(s, "languages"),
		Verified:          rpc.Bool(s, "verified"),
		AcceptingPatients: rpc.Bool(s, "accepting_patients"),
	}
}
