package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/repromitra/telehealth/libs/auth"
	"github.com/repromitra/telehealth/libs/httpx"
	"github.com/repromitra/telehealth/libs/session"
)

type Revocations interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// requireAuth verifies the bearer token and replaces identity headers with
// the verified claims. revoked may be nil.
func requireAuth(verifier *auth.Verifier, revoked Revocations, logger *slog.Logger) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			claims, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if revoked != nil {
				gone, err := revoked.IsRevoked(r.Context(), claims.ID)
				if err != nil {
					logger.Error("revocation check failed", "err", err)
					http.Error(w, "session check unavailable", http.StatusServiceUnavailable)
					return
				}
				if gone {
					http.Error(w, "session ended", http.StatusUnauthorized)
					return
				}
			}

			role := claims.Role
			if role != session.RoleDoctor {
				role = session.RolePatient
			}
			session.Session{
				UserID:    claims.Subject,
				Role:      role,
				Pseudonym: claims.Pseudonym,
				Phone:     claims.Phone,
			}.Apply(r.Header)
			next.ServeHTTP(w, r)
		})
	}
}
