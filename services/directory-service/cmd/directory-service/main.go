package main

import (
	"context"
	"net/http"
	"time"

	"github.com/repromitra/telehealth/libs/config"
	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/libs/grpcx"
	"github.com/repromitra/telehealth/libs/httpx"
	otelx "github.com/repromitra/telehealth/libs/otel"
	"github.com/repromitra/telehealth/libs/redisx"
	"github.com/repromitra/telehealth/libs/runtime"
	"github.com/repromitra/telehealth/services/directory-service/internal/cache"
	"github.com/repromitra/telehealth/services/directory-service/internal/directory"
	"github.com/repromitra/telehealth/services/directory-service/internal/grpcserver"
	"github.com/repromitra/telehealth/services/directory-service/internal/handlers"
	"github.com/repromitra/telehealth/services/directory-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "directory-service")
	port, err := config.Port("PORT", "8082")
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

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var doctorCache directory.Cache
	rdb, err := redisx.NewFromEnv()
	if err != nil {
		panic(err)
	}
	if rdb != nil {
		defer rdb.Close()
		ttl, err := config.Duration("DIRECTORY_CACHE_TTL", 60*time.Second)
		if err != nil {
			panic(err)
		}
		doctorCache = cache.NewDoctors(rdb, config.String("DIRECTORY_CACHE_KEY", cache.DefaultKey), ttl)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	} else {
		logger.Info("doctor cache disabled (REDIS_ADDR unset)")
	}

	repo := storage.NewRepository(pool)
	svc := directory.NewService(repo, doctorCache, logger)

	grpcPort, err := config.Port("GRPC_PORT", "9092")
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

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.New(svc, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "directory")
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
