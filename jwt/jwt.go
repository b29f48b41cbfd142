// Package jwtkit signs access tokens and publishes the matching JWKS.
package jwtkit

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"sort"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Signer signs claims into a compact JWS.
type Signer interface {
	Sign(ctx context.Context, claims map[string]any) (string, error)
	KID() string
	Algorithm() string
}

type RSASigner struct {
	key *rsa.PrivateKey
	kid string
}

// NewRSASigner generates a fresh RSA key of the given size.
func NewRSASigner(bits int, kid string) (*RSASigner, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("rsa key too small: %d", bits)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	return &RSASigner{key: key, kid: kid}, nil
}

// NewRSASignerFromKey wraps an existing key.
func NewRSASignerFromKey(key *rsa.PrivateKey, kid string) *RSASigner {
	return &RSASigner{key: key, kid: kid}
}

func (s *RSASigner) KID() string                 { return s.kid }
func (s *RSASigner) Algorithm() string           { return jwt.SigningMethodRS256.Alg() }
func (s *RSASigner) PublicKey() *rsa.PublicKey   { return &s.key.PublicKey }
func (s *RSASigner) PrivateKey() *rsa.PrivateKey { return s.key }

func (s *RSASigner) Sign(_ context.Context, claims map[string]any) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims(claims))
	tok.Header["kid"] = s.kid
	return tok.SignedString(s.key)
}

// Keyset holds the active signer and every public key that verifiers should accept.
type Keyset struct {
	Active     Signer
	PublicKeys map[string]*rsa.PublicKey
}

// NewKeyset builds a keyset around a single RSA signer.
func NewKeyset(s *RSASigner) Keyset {
	return Keyset{Active: s, PublicKeys: map[string]*rsa.PublicKey{s.KID(): s.PublicKey()}}
}

func (k Keyset) kids() []string {
	out := make([]string, 0, len(k.PublicKeys))
	for kid := range k.PublicKeys {
		out = append(out, kid)
	}
	sort.Strings(out)
	return out
}

var (
	ErrUnknownKID       = errors.New("unknown_kid")
	ErrUnexpectedMethod = errors.New("unexpected_signing_method")
)

// Keyfunc resolves the verification key from the token's kid header. Tokens without a
// kid are accepted only when the keyset has exactly one key.
func (k Keyset) Keyfunc() jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrUnexpectedMethod
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" && len(k.PublicKeys) == 1 {
			for _, pub := range k.PublicKeys {
				return pub, nil
			}
		}
		pub, ok := k.PublicKeys[kid]
		if !ok {
			return nil, ErrUnknownKID
		}
		return pub, nil
	}
}

// BaseRegisteredClaims returns sub/aud/iat/exp for a token that lives for ttl.
func BaseRegisteredClaims(sub string, aud []string, now time.Time, ttl time.Duration) map[string]any {
	return map[string]any{
		"sub": sub,
		"aud": aud,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
}
