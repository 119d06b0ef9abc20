// Package grpcx builds the internal gRPC clients and servers used between
// booking, directory and prescription services.
package grpcx

import (
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type DialOptions struct {
	// TransportCredentials defaults to insecure, which assumes mTLS at the mesh.
	TransportCredentials grpc.DialOption
	// CallTimeout bounds every unary call that has no earlier deadline. Zero disables it.
	CallTimeout time.Duration
}

// Dial returns a lazily connecting client, so a peer that starts later does
// not block startup.
func Dial(addr string, opts DialOptions, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	interceptors := []grpc.UnaryClientInterceptor{UnaryClientRequestIDInterceptor()}
	if opts.CallTimeout > 0 {
		interceptors = append(interceptors, UnaryClientTimeoutInterceptor(opts.CallTimeout))
	}
	creds := opts.TransportCredentials
	if creds == nil {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(interceptors...),
		creds,
	}, extra...)
	return grpc.NewClient(addr, dialOpts...)
}
