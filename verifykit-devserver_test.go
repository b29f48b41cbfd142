package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PaulFidika/verifykit/core"
	jwtkit "github.com/PaulFidika/verifykit/jwt"
	"github.com/PaulFidika/verifykit/notify"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestDevSecretOK(t *testing.T) {
	require.False(t, devSecretOK("Bearer s", "", ""))
	require.True(t, devSecretOK("", "s3", "s3"))
	require.False(t, devSecretOK("Bearer s3", "wrong", "s3"))
	require.True(t, devSecretOK("bearer s3", "", "s3"))
	require.False(t, devSecretOK("Basic s3", "", "s3"))
}

func TestDevMintHandler(t *testing.T) {
	signer, err := jwtkit.NewRSASigner(2048, "dev")
	require.NoError(t, err)
	h := devMintHandler("http://issuer/", "verifykit", signer, "s3")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/dev/mint", strings.NewReader(`{"sub":"acct-1"}`))
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/dev/mint", strings.NewReader(`{"sub":"acct-1","kind":"Manager","company_id":"co-1"}`))
	r.Header.Set("X-DEV-SECRET", "s3")
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp mintResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "Bearer", resp.TokenType)

	claims := jwt.MapClaims{}
	_, err = jwt.NewParser().ParseWithClaims(resp.Token, claims, jwtkit.NewKeyset(signer).Keyfunc())
	require.NoError(t, err)
	require.Equal(t, "http://issuer", claims["iss"])
	require.Equal(t, "acct-1", claims["sub"])
	require.Equal(t, "manager", claims["kind"])
	require.Equal(t, "co-1", claims["company_id"])

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/dev/mint", strings.NewReader(`{"sub":"acct-1","kind":"root"}`))
	r.Header.Set("X-DEV-SECRET", "s3")
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDevOutboxHandler(t *testing.T) {
	outbox := notify.NewOutbox(5)
	require.NoError(t, outbox.Send(context.Background(), "a@co.com", core.Message{Kind: core.MessageOTP, Code: "123456"}))
	h := devOutboxHandler(outbox, "s3")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dev/outbox?address=A@co.com", nil)
	r.Header.Set("Authorization", "Bearer s3")
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "123456")

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/dev/outbox?address=nope", nil)
	r.Header.Set("Authorization", "Bearer s3")
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("VERIFYKIT_ISSUER", "https://verify.example.com/")
	t.Setenv("DB_URL", "postgres://localhost/verify")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("VERIFYKIT_DEV_MODE", "false")
	t.Setenv("VERIFYKIT_TRUSTED_PROXIES", "10.0.0.0/8,192.168.1.7")

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, "https://verify.example.com", cfg.Issuer)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	require.Equal(t, 587, cfg.SMTP.Port)
	require.True(t, cfg.MigrateOnStart)
	require.Equal(t, []string{"10.0.0.0/8", "192.168.1.7"}, cfg.TrustedProxies)

	t.Setenv("VERIFYKIT_DEV_MODE", "true")
	t.Setenv("VERIFYKIT_DEV_MINT_SECRET", "")
	_, err = loadConfig()
	require.Error(t, err)
}
