package main

import (
	"context"
	"embed"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/repromitra/telehealth/libs/auth"
	"github.com/repromitra/telehealth/libs/config"
	"github.com/repromitra/telehealth/libs/httpx"
	otelx "github.com/repromitra/telehealth/libs/otel"
	"github.com/repromitra/telehealth/libs/redisx"
	"github.com/repromitra/telehealth/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:embed assets/gateway.v1.yaml
var openAPISpec embed.FS

func main() {
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
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

	rdb, err := redisx.NewFromEnv()
	if err != nil {
		panic(err)
	}
	var checks []runtime.ReadyCheck
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}

	var keys auth.KeyResolver
	jwksTTL, err := config.Duration("JWKS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		panic(err)
	}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		keys = auth.NewJWKSClient(jwksURL, jwksTTL)
	}
	verifier := auth.NewVerifier(config.String("JWT_SECRET", "dev-secret"), keys)

	var revoked Revocations
	if rdb != nil {
		revoked = auth.NewRevocationList(rdb, config.String("REVOCATION_PREFIX", "revoked"))
	} else {
		logger.Warn("REDIS_ADDR unset: signed-out access tokens stay valid until expiry")
	}

	otpLimit, err := config.Int("OTP_RATE_LIMIT_PER_MINUTE", 5)
	if err != nil {
		panic(err)
	}
	limitPerMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		panic(err)
	}
	prefix := config.String("RATE_LIMIT_PREFIX", "rl")
	limitOpts := httpx.RateLimitOptions{Logger: logger, FailOpen: config.Bool("RATE_LIMIT_FAIL_OPEN", true)}
	otpLimiter := newLimiter(rdb, otpLimit, prefix+":otp")
	requestLimiter := newLimiter(rdb, limitPerMinute, prefix)
	logger.Info("rate limiting enabled", "per_minute", limitPerMinute, "otp_per_minute", otpLimit, "shared", rdb != nil)

	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, Upstreams{
		Auth:         config.String("AUTH_URL", "http://auth-service:8081"),
		Directory:    config.String("DIRECTORY_URL", "http://directory-service:8082"),
		Booking:      config.String("BOOKING_URL", "http://booking-service:8083"),
		Consultation: config.String("CONSULTATION_URL", "http://consultation-service:8084"),
		Prescription: config.String("PRESCRIPTION_URL", "http://prescription-service:8085"),
		Analytics:    config.String("ANALYTICS_URL", "http://analytics-service:8088"),
	}, requireAuth(verifier, revoked, logger), httpx.RateLimit(otpLimiter, limitOpts))

	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		panic(err)
	}
	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		panic(err)
	}
	corsMaxAge, err := config.Duration("CORS_MAX_AGE", 10*time.Minute)
	if err != nil {
		panic(err)
	}
	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", nil),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Request-Id", "Idempotency-Key"}),
			ExposedHeaders:   []string{"X-Request-Id", "Content-Disposition", "Retry-After"},
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           corsMaxAge,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.WithTimeout(requestTimeout),
		httpx.RateLimit(requestLimiter, limitOpts),
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "jwks", keys != nil)
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

// newLimiter shares counters through Redis when it is configured.
func newLimiter(rdb *redis.Client, perMinute int, prefix string) httpx.Limiter {
	if rdb != nil {
		return httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, prefix)
	}
	return httpx.NewRateLimiter(perMinute, time.Minute)
}
