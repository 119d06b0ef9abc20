package handlers

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"sort"
	"strings"

	"github.com/repromitra/telehealth/libs/auth"
)

type TokenSigner interface {
	Sign(claims auth.Claims) (string, error)
	Verify(token string) (*auth.Claims, error)
	JWKS() []auth.JWK
}

type hs256Signer struct {
	secret string
}

func NewHS256Signer(secret string) TokenSigner {
	return &hs256Signer{secret: secret}
}

func (s *hs256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignHS256(claims, s.secret)
}

func (s *hs256Signer) Verify(token string) (*auth.Claims, error) {
	return auth.ParseAndVerifyHS256(token, s.secret)
}

func (s *hs256Signer) JWKS() []auth.JWK {
	return nil
}

// rs256Signer signs with the active key and publishes every key in the set,
// so tokens minted before a rotation stay verifiable until they expire.
type rs256Signer struct {
	activeKid string
	keys      map[string]*rsa.PrivateKey
	verifier  *auth.Verifier
}

// NewRS256Signer accepts one or more concatenated PEM private keys. An empty
// activeKid selects the first key in the PEM input.
func NewRS256Signer(pemBlobs string, activeKid string) (TokenSigner, error) {
	blocks := splitPEMBlocks(pemBlobs)
	if len(blocks) == 0 {
		return nil, errors.New("no pem blocks found")
	}
	s := &rs256Signer{keys: map[string]*rsa.PrivateKey{}}
	public := auth.StaticKeys{}
	for _, block := range blocks {
		key, err := parseRSAPrivateKey([]byte(block))
		if err != nil {
			return nil, err
		}
		kid := keyIDFromPublicKey(&key.PublicKey)
		if s.activeKid == "" && activeKid == "" {
			s.activeKid = kid
		}
		s.keys[kid] = key
		public[kid] = &key.PublicKey
	}
	if activeKid != "" {
		if s.keys[activeKid] == nil {
			return nil, errors.New("active kid not found")
		}
		s.activeKid = activeKid
	}
	s.verifier = auth.NewVerifier("", public)
	return s, nil
}

func (s *rs256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignRS256(claims, s.keys[s.activeKid], s.activeKid)
}

func (s *rs256Signer) Verify(token string) (*auth.Claims, error) {
	return s.verifier.Verify(token)
}

func (s *rs256Signer) JWKS() []auth.JWK {
	kids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	out := make([]auth.JWK, 0, len(kids))
	for _, kid := range kids {
		out = append(out, auth.PublicJWK(&s.keys[kid].PublicKey, kid))
	}
	return out
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
	}
	return nil, errors.New("unsupported private key")
}

func keyIDFromPublicKey(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}

func splitPEMBlocks(raw string) []string {
	var blocks []string
	var current strings.Builder
	inBlock := false
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "-----BEGIN ") {
			inBlock = true
			current.Reset()
		}
		if inBlock {
			current.WriteString(line)
			current.WriteString("\n")
		}
		if strings.HasPrefix(line, "-----END ") && inBlock {
			inBlock = false
			blocks = append(blocks, current.String())
		}
	}
	return blocks
}
