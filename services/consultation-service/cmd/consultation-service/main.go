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
	"github.com/repromitra/telehealth/libs/redisx"
	"github.com/repromitra/telehealth/libs/rpc/bookingrpc"
	"github.com/repromitra/telehealth/libs/runtime"
	"github.com/repromitra/telehealth/services/consultation-service/internal/consultation"
	"github.com/repromitra/telehealth/services/consultation-service/internal/handlers"
	"github.com/repromitra/telehealth/services/consultation-service/internal/jitsi"
	"github.com/repromitra/telehealth/services/consultation-service/internal/rooms"
	"github.com/repromitra/telehealth/services/consultation-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "consultation-service")
	port, err := config.Port("PORT", "8084")
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
	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}

	roomTTL, err := config.Duration("CONSULTATION_ROOM_TTL", 2*time.Hour)
	if err != nil {
		panic(err)
	}
	var roomStore rooms.Store
	rdb, err := redisx.NewFromEnv()
	if err != nil {
		panic(err)
	}
	if rdb != nil {
		defer rdb.Close()
		roomStore = rooms.NewRedisStore(rdb, "consultation:room")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	} else {
		logger.Warn("REDIS_ADDR unset: room presence is kept in process memory")
		roomStore = rooms.NewMemoryStore()
	}

	domain := config.String("JITSI_DOMAIN", "meet.jit.si")
	var tokens *jitsi.Signer
	if secret := config.String("JITSI_APP_SECRET", ""); secret != "" {
		tokens = jitsi.NewSigner(config.String("JITSI_APP_ID", "repromitra"), secret, domain, roomTTL)
	}

	bookingConn, err := grpcx.Dial(config.String("BOOKING_GRPC_ADDR", "booking-service:9093"), grpcx.DialOptions{CallTimeout: 3 * time.Second})
	if err != nil {
		panic(err)
	}
	defer bookingConn.Close()

	outboxRepo := outbox.NewRepository()
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	svc := consultation.NewService(
		bookingrpc.NewClient(bookingConn),
		rooms.NewManager(roomStore, roomTTL),
		tokens,
		storage.NewSessionRepository(pool, outboxRepo),
		consultation.Config{Domain: domain},
		logger,
	)

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.New(svc, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "consultation")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "jitsi_domain", domain, "jitsi_jwt", tokens != nil)
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
