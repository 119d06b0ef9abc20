package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/repromitra/telehealth/libs/auth"
	"github.com/repromitra/telehealth/libs/config"
	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/libs/httpx"
	"github.com/repromitra/telehealth/libs/kafkax"
	otelx "github.com/repromitra/telehealth/libs/otel"
	"github.com/repromitra/telehealth/libs/outbox"
	"github.com/repromitra/telehealth/libs/redisx"
	"github.com/repromitra/telehealth/libs/runtime"
	"github.com/repromitra/telehealth/libs/sms"
	"github.com/repromitra/telehealth/services/auth-service/internal/audit"
	"github.com/repromitra/telehealth/services/auth-service/internal/handlers"
	"github.com/repromitra/telehealth/services/auth-service/internal/otp"
	"github.com/repromitra/telehealth/services/auth-service/internal/sessions"
	"github.com/repromitra/telehealth/services/auth-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8081")
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

	rdb, err := redisx.NewFromEnv()
	if err != nil {
		panic(err)
	}
	brokers := config.String("KAFKA_BROKERS", "")
	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	var revocations handlers.Revocations
	if rdb != nil {
		defer rdb.Close()
		revocations = auth.NewRevocationList(rdb, config.String("REVOCATION_PREFIX", "revoked"))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	} else {
		logger.Warn("REDIS_ADDR unset: sign-out will not revoke access tokens")
	}

	provider, err := buildOTPProvider(rdb, logger)
	if err != nil {
		logger.Error("failed to init otp provider", "err", err)
		panic(err)
	}
	signer, err := buildSigner()
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
		panic(err)
	}
	accessTTL, err := config.Duration("ACCESS_TOKEN_TTL", time.Hour)
	if err != nil {
		panic(err)
	}
	refreshTTL, err := config.Duration("REFRESH_TOKEN_TTL", 30*24*time.Hour)
	if err != nil {
		panic(err)
	}

	outboxRepo := outbox.NewRepository()
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	authHandler := handlers.NewAuthHandler(
		signer,
		provider,
		storage.NewUserRepository(pool, outboxRepo),
		sessions.NewRefreshRepository(pool),
		audit.NewRepository(pool),
		revocations,
		handlers.Config{AccessTTL: accessTTL, RefreshTTL: refreshTTL},
		logger,
	)

	mux := runtime.NewBaseMuxWithReady(checks...)
	authHandler.Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "auth")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "otp_provider", provider.Name())
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

func buildSigner() (handlers.TokenSigner, error) {
	if pemKeys := config.String("JWT_PRIVATE_KEYS_PEM", ""); pemKeys != "" {
		return handlers.NewRS256Signer(pemKeys, config.String("JWT_ACTIVE_KID", ""))
	}
	return handlers.NewHS256Signer(config.String("JWT_SECRET", "dev-secret")), nil
}

func buildOTPProvider(rdb *redis.Client, logger *slog.Logger) (otp.Provider, error) {
	switch name := strings.ToLower(config.String("OTP_PROVIDER", "local")); name {
	case "twilio":
		sid, err := config.RequiredString("TWILIO_ACCOUNT_SID")
		if err != nil {
			return nil, err
		}
		token, err := config.RequiredString("TWILIO_AUTH_TOKEN")
		if err != nil {
			return nil, err
		}
		serviceSID, err := config.RequiredString("TWILIO_VERIFY_SERVICE_SID")
		if err != nil {
			return nil, err
		}
		return otp.NewTwilioVerify(sid, token, serviceSID), nil
	case "local":
		if rdb == nil {
			return nil, fmt.Errorf("OTP_PROVIDER=local requires REDIS_ADDR")
		}
		sender, err := sms.FromEnv()
		if err != nil {
			return nil, err
		}
		if config.Bool("OTP_LOG_CODES", false) {
			logger.Warn("OTP_LOG_CODES enabled: verification messages are written to the log")
			sender = logSender{next: sender, logger: logger}
		}
		ttl, err := config.Duration("OTP_TTL", 5*time.Minute)
		if err != nil {
			return nil, err
		}
		attempts, err := config.Int("OTP_MAX_ATTEMPTS", 5)
		if err != nil {
			return nil, err
		}
		return otp.NewLocal(otp.NewRedisStore(rdb, "otp"), sender, otp.LocalConfig{TTL: ttl, MaxAttempts: attempts}), nil
	default:
		return nil, fmt.Errorf("unknown OTP_PROVIDER %q", name)
	}
}

// logSender echoes outgoing messages for local development without an SMS gateway.
type logSender struct {
	next   sms.Sender
	logger *slog.Logger
}

func (s logSender) ProviderID() string { return s.next.ProviderID() }

func (s logSender) Send(ctx context.Context, to, body string) error {
	s.logger.Info("sms", "to", to, "body", body)
	return s.next.Send(ctx, to, body)
}
