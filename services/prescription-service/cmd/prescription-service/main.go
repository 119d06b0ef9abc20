package main

import (
	"context"
	"net/http"
	"time"

	"github.com/repromitra/telehealth/libs/config"
	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/libs/grpcx"
	"github.com/repromitra/telehealth/libs/httpx"
	"github.com/repromitra/telehealth/libs/kafkax"
	otelx "github.com/repromitra/telehealth/libs/otel"
	"github.com/repromitra/telehealth/libs/outbox"
	"github.com/repromitra/telehealth/libs/rpc/bookingrpc"
	"github.com/repromitra/telehealth/libs/rpc/directoryrpc"
	"github.com/repromitra/telehealth/libs/runtime"
	"github.com/repromitra/telehealth/services/prescription-service/internal/handlers"
	"github.com/repromitra/telehealth/services/prescription-service/internal/prescriptions"
	"github.com/repromitra/telehealth/services/prescription-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "prescription-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")
	callTimeout, err := config.Duration("GRPC_CALL_TIMEOUT", 3*time.Second)
	if err != nil {
		panic(err)
	}

	bookingConn, err := grpcx.Dial(config.String("BOOKING_GRPC_ADDR", "booking-service:9093"), grpcx.DialOptions{CallTimeout: callTimeout})
	if err != nil {
		panic(err)
	}
	defer bookingConn.Close()
	directoryConn, err := grpcx.Dial(config.String("DIRECTORY_GRPC_ADDR", "directory-service:9092"), grpcx.DialOptions{CallTimeout: callTimeout})
	if err != nil {
		panic(err)
	}
	defer directoryConn.Close()

	outboxRepo := outbox.NewRepository()
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	svc := prescriptions.NewService(
		bookingrpc.NewClient(bookingConn),
		directoryrpc.NewClient(directoryConn),
		storage.NewPrescriptionRepository(pool, outboxRepo),
		logger,
	)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handlers.New(svc, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "prescription")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
