package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/repromitra/telehealth/libs/httpx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Upstreams struct {
	Auth         string
	Directory    string
	Booking      string
	Consultation string
	Prescription string
	Analytics    string
}

func registerRoutes(mux *http.ServeMux, up Upstreams, authed httpx.Middleware, otpLimit httpx.Middleware) {
	otelTransport := otelhttp.NewTransport(http.DefaultTransport)
	proxy := func(raw string) http.Handler {
		p := httputil.NewSingleHostReverseProxy(mustParseURL(raw))
		p.Transport = otelTransport
		return p
	}
	authProxy := proxy(up.Auth)
	directoryProxy := proxy(up.Directory)
	bookingProxy := proxy(up.Booking)

	// OTP issuance costs an SMS, so it gets its own tighter per-client limit.
	registerProxy(mux, "/api/v1/auth/otp", otpLimit(authProxy))
	registerProxy(mux, "/api/v1/auth", authProxy)
	mux.Handle("GET /.well-known/jwks.json", authProxy)

	mux.Handle("GET /api/v1/doctors", directoryProxy)
	mux.Handle("GET /api/v1/doctors/", directoryProxy)
	mux.Handle("GET /api/v1/public/slots", bookingProxy)

	registerProxy(mux, "/api/v1/profile", authed(directoryProxy))
	registerProxy(mux, "/api/v1/appointments", authed(bookingProxy))
	registerProxy(mux, "/api/v1/consultations", authed(proxy(up.Consultation)))
	registerProxy(mux, "/api/v1/prescriptions", authed(proxy(up.Prescription)))
	registerProxy(mux, "/api/v1/metrics", authed(proxy(up.Analytics)))

	mux.HandleFunc("GET /openapi", func(w http.ResponseWriter, _ *http.Request) {
		data, err := openAPISpec.ReadFile("assets/gateway.v1.yaml")
		if err != nil {
			http.Error(w, "openapi not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
