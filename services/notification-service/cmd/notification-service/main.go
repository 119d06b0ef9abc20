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
	"github.com/repromitra/telehealth/libs/outbox"
	"github.com/repromitra/telehealth/libs/runtime"
	"github.com/repromitra/telehealth/libs/sms"
	"github.com/repromitra/telehealth/services/notification-service/internal/email"
	"github.com/repromitra/telehealth/services/notification-service/internal/notify"
	"github.com/repromitra/telehealth/services/notification-service/internal/storage"
	"github.com/repromitra/telehealth/services/notification-service/internal/templates"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8086")
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
	outboxRepo := outbox.NewRepository()
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	smsSender, err := sms.FromEnv()
	if err != nil {
		panic(err)
	}

	var emailSender email.Sender
	if host := config.String("SMTP_HOST", ""); host != "" {
		emailSender = email.NewSMTPSender(email.SMTPConfig{
			Host:     host,
			Port:     config.String("SMTP_PORT", "1025"),
			From:     config.String("SMTP_FROM", "no-reply@repromitra.local"),
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
		})
	} else {
		logger.Warn("SMTP_HOST unset: email notifications will be recorded as failed")
	}

	svc := notify.NewService(smsSender, emailSender, storage.NewRepository(pool, outboxRepo), logger)

	topics := config.List("KAFKA_CONSUME_TOPICS", templates.Topics)
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	eventConsumer := consumer.New(logger, inbox.NewRepository(pool, groupID), consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topics:  topics,
	}, svc.HandleMessage)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "sms_provider", smsSender.ProviderID(), "topics", topics)
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
