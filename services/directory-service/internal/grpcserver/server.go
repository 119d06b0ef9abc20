package grpcserver

import (
	"context"
	"errors"

	"github.com/repromitra/telehealth/libs/rpc/directoryrpc"
	"github.com/repromitra/telehealth/services/directory-service/internal/model"
	"google.golang.org/grpc"
)

type Doctors interface {
	Doctor(ctx context.Context, id string) (model.Doctor, error)
}

type server struct {
	doctors Doctors
}

func Register(grpcServer grpc.ServiceRegistrar, doctors Doctors) {
	directoryrpc.Register(grpcServer, &server{doctors: doctors})
}

func (s *server) GetDoctor(ctx context.Context, id string) (directoryrpc.Doctor, error) {
	d, err := s.doctors.Doctor(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return directoryrpc.Doctor{}, directoryrpc.ErrDoctorNotFound
	}
	if err != nil {
		return directoryrpc.Doctor{}, err
	}
	return directoryrpc.Doctor{
		ID:                d.ID,
		Name:              d.Name,
		Specialization:    d.Specialization,
		Languages:         d.Languages,
		Verified:          d.Verified,
		AcceptingPatients: d.AcceptingPatients,
	}, nil
}
