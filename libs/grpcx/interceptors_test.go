package grpcx

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/repromitra/telehealth/libs/httpx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestClientTimeoutInterceptor(t *testing.T) {
	ic := UnaryClientTimeoutInterceptor(time.Second)

	var deadline time.Time
	var ok bool
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		deadline, ok = ctx.Deadline()
		return nil
	}

	if err := ic(context.Background(), "/x", nil, nil, nil, invoker); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !ok || time.Until(deadline) > time.Second {
		t.Fatalf("expected a deadline within 1s, got %v ok=%v", deadline, ok)
	}

	short, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	want, _ := short.Deadline()
	_ = ic(short, "/x", nil, nil, nil, invoker)
	if !deadline.Equal(want) {
		t.Fatalf("earlier caller deadline should be kept")
	}
}

func TestClientRequestIDInterceptor(t *testing.T) {
	ic := UnaryClientRequestIDInterceptor()
	var got []string
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		got = md.Get(RequestIDMetadataKey)
		return nil
	}
	ctx := httpx.ContextWithRequestID(context.Background(), "req-42")
	_ = ic(ctx, "/x", nil, nil, nil, invoker)
	if len(got) != 1 || got[0] != "req-42" {
		t.Fatalf("request id not propagated: %v", got)
	}
}

func TestServerRequestIDInterceptor(t *testing.T) {
	ic := UnaryServerRequestIDInterceptor()
	var seen string
	handler := func(ctx context.Context, _ any) (any, error) {
		seen = httpx.RequestIDFromContext(ctx)
		return nil, nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/x"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "req-7"))
	_, _ = ic(ctx, nil, info, handler)
	if seen != "req-7" {
		t.Fatalf("expected incoming id, got %q", seen)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "bad id\n"))
	_, _ = ic(ctx, nil, info, handler)
	if seen == "" || seen == "bad id\n" {
		t.Fatalf("malformed id should be replaced, got %q", seen)
	}
}

func TestServerLogInterceptorRecoversPanics(t *testing.T) {
	ic := UnaryServerLogInterceptor(slog.New(slog.NewTextHandler(io.Discard, nil)))
	info := &grpc.UnaryServerInfo{FullMethod: "/booking.v1.BookingService/GetAppointment"}

	_, err := ic(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal after panic, got %v", err)
	}

	want := status.Error(codes.NotFound, "appointment not found")
	_, err = ic(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, want
	})
	if err != want {
		t.Fatalf("handler errors must pass through, got %v", err)
	}
}
