// Package session carries the authenticated caller through downstream services.
// The gateway verifies the access token and forwards identity as headers.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	HeaderUserID    = "X-User-Id"
	HeaderRole      = "X-Role"
	HeaderPseudonym = "X-Pseudonym"
	HeaderPhone     = "X-User-Phone"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Session struct {
	UserID    string
	Role      string
	Pseudonym string
	Phone     string
}

// FromRequest builds a Session from gateway identity headers.
func FromRequest(r *http.Request) (Session, error) {
	s := Session{
		UserID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Role:      strings.TrimSpace(r.Header.Get(HeaderRole)),
		Pseudonym: strings.TrimSpace(r.Header.Get(HeaderPseudonym)),
		Phone:     strings.TrimSpace(r.Header.Get(HeaderPhone)),
	}
	if s.UserID == "" {
		return Session{}, ErrUnauthenticated
	}
	if s.Role == "" {
		s.Role = RolePatient
	}
	return s, nil
}

// Apply writes s onto outgoing request headers, replacing anything the client sent.
func (s Session) Apply(h http.Header) {
	h.Del(HeaderUserID)
	h.Del(HeaderRole)
	h.Del(HeaderPseudonym)
	h.Del(HeaderPhone)
	if s.UserID == "" {
		return
	}
	h.Set(HeaderUserID, s.UserID)
	h.Set(HeaderRole, s.Role)
	if s.Pseudonym != "" {
		h.Set(HeaderPseudonym, s.Pseudonym)
	}
	if s.Phone != "" {
		h.Set(HeaderPhone, s.Phone)
	}
}

func (s Session) IsDoctor() bool { return s.Role == RoleDoctor }

// IsParticipant reports whether the caller is the patient or the doctor.
func (s Session) IsParticipant(patientID, doctorID string) bool {
	if s.UserID == "" {
		return false
	}
	return s.UserID == patientID || s.UserID == doctorID
}

// DisplayName is what other participants see in a consultation room.
func (s Session) DisplayName() string {
	if s.Pseudonym != "" {
		return s.Pseudonym
	}
	return "Anonymous User"
}

type ctxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok && s.UserID != ""
}

// Require rejects requests without identity headers and stores the session on the context.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := FromRequest(r)
		if err != nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}
