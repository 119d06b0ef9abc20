package main

import (
	"context"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/repromitra/telehealth/libs/config"
	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/libs/grpcx"
	"github.com/repromitra/telehealth/libs/httpx"
	"github.com/repromitra/telehealth/libs/kafkax"
	otelx "github.com/repromitra/telehealth/libs/otel"
	"github.com/repromitra/telehealth/libs/outbox"
	"github.com/repromitra/telehealth/libs/runtime"
	"github.com/repromitra/telehealth/services/booking-service/internal/availability"
	"github.com/repromitra/telehealth/services/booking-service/internal/booking"
	"github.com/repromitra/telehealth/services/booking-service/internal/directory"
	"github.com/repromitra/telehealth/services/booking-service/internal/grpcserver"
	"github.com/repromitra/telehealth/services/booking-service/internal/handlers"
	"github.com/repromitra/telehealth/services/booking-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	grid, loc, err := slotGridFromEnv()
	if err != nil {
		panic(err)
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

	directoryConn, err := grpcx.Dial(config.String("DIRECTORY_GRPC_ADDR", "directory-service:9092"), grpcx.DialOptions{})
	if err != nil {
		panic(err)
	}
	defer directoryConn.Close()
	directoryClient := directory.New(directoryConn, 3*time.Second)

	outboxRepo := outbox.NewRepository()
	repo := storage.NewBookingRepository(pool, outboxRepo)
	svc := booking.NewService(repo, directoryClient, logger, booking.Config{Grid: grid, Location: loc})

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		panic(err)
	}
	grpcServer := grpcx.NewServer(logger)
	grpcserver.Register(grpcServer, svc)
	go func() {
		if err := grpcx.Serve(ctx, logger, grpcServer, ":"+grpcPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handlers.NewBookingHandler(svc, logger).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "slots_per_day", len(grid.Labels()), "timezone", loc.String())
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

func slotGridFromEnv() (availability.Grid, *time.Location, error) {
	step, err := config.Int("SLOT_STEP_MINUTES", 30)
	if err != nil {
		return availability.Grid{}, nil, err
	}
	grid, err := availability.NewGrid(
		config.String("SLOT_DAY_START", "09:00"),
		config.String("SLOT_DAY_END", "17:00"),
		time.Duration(step)*time.Minute,
	)
	if err != nil {
		return availability.Grid{}, nil, err
	}
	loc, err := time.LoadLocation(config.String("CLINIC_TIMEZONE", "Asia/Kolkata"))
	if err != nil {
		return availability.Grid{}, nil, err
	}
	return grid, loc, nil
}
