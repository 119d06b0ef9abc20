package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "2")
	t.Setenv("APP_ENV", "staging")
	cfg := ConfigFromEnv("booking-service")
	if cfg.Enabled || cfg.SampleRatio != 1 || cfg.Environment != "staging" || cfg.OTLPEndpoint != "jaeger:4317" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	if got := ConfigFromEnv("x").SampleRatio; got != 0.25 {
		t.Fatalf("expected ratio 0.25, got %v", got)
	}
}

func TestCaptureRestore(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "book")
	defer span.End()

	parent, _ := Capture(ctx)
	if parent == "" {
		t.Fatal("expected a traceparent")
	}
	restored := trace.SpanContextFromContext(Restore(context.Background(), parent, ""))
	if restored.TraceID() != span.SpanContext().TraceID() {
		t.Fatalf("trace id lost: %v", restored.TraceID())
	}

	if Restore(context.Background(), "", "") != context.Background() {
		t.Fatal("empty trace context should return ctx unchanged")
	}
}
