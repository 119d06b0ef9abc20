package main

import (
	"context"
	"net/http"
	"time"

	"github.com/repromitra/telehealth/libs/config"
	"github.com/repromitra/telehealth/libs/consumer"
	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/libs/httpx"
	"github.com/repromitra/telehealth/libs/inbox"
	"github.com/repromitra/telehealth/libs/kafkax"
	otelx "github.com/repromitra/telehealth/libs/otel"
	"github.com/repromitra/telehealth/libs/runtime"
	"github.com/repromitra/telehealth/services/analytics-service/internal/handlers"
	"github.com/repromitra/telehealth/services/analytics-service/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8088")
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
	repo := metrics.NewRepository(pool)
	groupID := config.String("KAFKA_GROUP_ID", "analytics-service")
	eventConsumer := consumer.New(logger, inbox.NewRepository(pool, groupID), consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topics:  config.List("KAFKA_CONSUME_TOPICS", metrics.Topics),
	}, metrics.NewAggregator(repo, logger).HandleMessage)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handlers.New(repo, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
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
