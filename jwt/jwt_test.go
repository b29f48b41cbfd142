package jwtkit

import (
	"context"
	"crypto/rsa"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyWithKeyfunc(t *testing.T) {
	signer, err := NewRSASigner(2048, "k1")
	require.NoError(t, err)
	ks := NewKeyset(signer)

	claims := BaseRegisteredClaims("acc-1", []string{"verifykit"}, time.Now(), time.Hour)
	claims["kind"] = "manager"
	tok, err := signer.Sign(context.Background(), claims)
	require.NoError(t, err)

	parsed := jwt.MapClaims{}
	token, err := jwt.NewParser().ParseWithClaims(tok, parsed, ks.Keyfunc())
	require.NoError(t, err)
	require.True(t, token.Valid)
	require.Equal(t, "k1", token.Header["kid"])
	require.Equal(t, "manager", parsed["kind"])

	other, err := NewRSASigner(2048, "k2")
	require.NoError(t, err)
	forged, err := other.Sign(context.Background(), claims)
	require.NoError(t, err)
	_, err = jwt.NewParser().ParseWithClaims(forged, jwt.MapClaims{}, ks.Keyfunc())
	require.ErrorIs(t, err, ErrUnknownKID)
}

func TestNewRSASigner_RejectsSmallKeys(t *testing.T) {
	_, err := NewRSASigner(1024, "k")
	require.Error(t, err)
}

func TestJWKSRoundTrip(t *testing.T) {
	a, err := NewRSASigner(2048, "b-key")
	require.NoError(t, err)
	b, err := NewRSASigner(2048, "a-key")
	require.NoError(t, err)
	ks := Keyset{Active: a, PublicKeys: map[string]*rsa.PublicKey{a.KID(): a.PublicKey(), b.KID(): b.PublicKey()}}

	w := httptest.NewRecorder()
	ServeJWKS(w, httptest.NewRequest("GET", "/.well-known/jwks.json", nil), ks)
	require.Equal(t, 200, w.Code)
	require.Equal(t, "public, max-age=300", w.Header().Get("Cache-Control"))
	body := w.Body.String()
	require.Less(t, strings.Index(body, `"a-key"`), strings.Index(body, `"b-key"`))
	require.Contains(t, body, `"use":"sig"`)

	parsed, err := ParseJWKS(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, parsed.PublicKeys, 2)
	require.True(t, parsed.PublicKeys["b-key"].Equal(a.PublicKey()))
}
