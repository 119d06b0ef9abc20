package directoryrpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/repromitra/telehealth/libs/grpcx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type stubDirectory map[string]Doctor

func (s stubDirectory) GetDoctor(_ context.Context, id string) (Doctor, error) {
	d, ok := s[id]
	if !ok {
		return Doctor{}, ErrDoctorNotFound
	}
	return d, nil
}

func TestGetDoctorOverGRPC(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpcx.NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	Register(srv, stubDirectory{
		"d-1": {ID: "d-1", Name: "Dr. Asha Rao", Specialization: "Gynecology", Languages: []string{"English", "Odia"}, AcceptingPatients: true},
	})
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d, err := client.GetDoctor(ctx, "d-1")
	if err != nil {
		t.Fatalf("GetDoctor failed: %v", err)
	}
	if d.Name != "Dr. Asha Rao" || len(d.Languages) != 2 || d.Languages[1] != "Odia" || !d.AcceptingPatients {
		t.Fatalf("unexpected doctor %+v", d)
	}
	if _, err := client.GetDoctor(ctx, "nope"); !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("expected ErrDoctorNotFound, got %v", err)
	}
}
