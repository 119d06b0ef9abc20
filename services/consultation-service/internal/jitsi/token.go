// Package jitsi mints room tokens for a Jitsi deployment with JWT auth enabled.
package jitsi

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Moderator bool   `json:"moderator"`
}

type roomContext struct {
	User User `json:"user"`
}

// Claims follow the token layout Prosody's token auth expects.
type Claims struct {
	Room    string      `json:"room"`
	Context roomContext `json:"context"`
	jwt.RegisteredClaims
}

type Signer struct {
	appID  string
	secret []byte
	domain string
	ttl    time.Duration
}

func NewSigner(appID, secret, domain string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Signer{appID: appID, secret: []byte(secret), domain: domain, ttl: ttl}
}

// Sign returns a token valid for one room only.
func (s *Signer) Sign(room string, user User, now time.Time) (string, error) {
	claims := Claims{
		Room:    room,
		Context: roomContext{User: user},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.appID,
			Subject:   s.domain,
			Audience:  jwt.ClaimStrings{"jitsi"},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
