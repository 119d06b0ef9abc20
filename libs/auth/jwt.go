package auth

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

// Claims is the access token payload shared by auth-service and the gateway.
// Subject carries the user id and ID carries the jti used for sign-out.
type Claims struct {
	Role      string `json:"role"`
	Pseudonym string `json:"pseudonym,omitempty"`
	Phone     string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

func NewClaims(userID, role, pseudonym, phone, jti string, issuedAt time.Time, ttl time.Duration) Claims {
	return Claims{
		Role:      role,
		Pseudonym: pseudonym,
		Phone:     phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
}

func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func SignRS256(claims Claims, key *rsa.PrivateKey, kid string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	return token.SignedString(key)
}

// KeyResolver finds the RSA verification key for a kid. *JWKSClient and
// StaticKeys implement it.
type KeyResolver interface {
	Get(kid string) (*rsa.PublicKey, error)
}

// StaticKeys resolves kids from an in-process key set.
type StaticKeys map[string]*rsa.PublicKey

func (k StaticKeys) Get(kid string) (*rsa.PublicKey, error) {
	if key, ok := k[kid]; ok {
		return key, nil
	}
	return nil, ErrKeyNotFound
}

// Verifier validates HS256 tokens with a shared secret and RS256 tokens
// against keys from a resolver, usually the auth-service JWKS endpoint.
type Verifier struct {
	secret []byte
	keys   KeyResolver
}

func NewVerifier(secret string, keys KeyResolver) *Verifier {
	return &Verifier{secret: []byte(secret), keys: keys}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.Alg() {
	case jwt.SigningMethodRS256.Alg():
		kid, _ := t.Header["kid"].(string)
		if v.keys == nil || kid == "" {
			return nil, ErrKeyNotFound
		}
		return v.keys.Get(kid)
	default:
		if len(v.secret) == 0 {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}
}

func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	return NewVerifier(secret, nil).Verify(token)
}
