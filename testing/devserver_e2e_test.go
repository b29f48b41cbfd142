//go:build e2e

package testing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	jwtkit "github.com/PaulFidika/verifykit/jwt"
)

// The devserver must already be running with VERIFYKIT_DEV_MODE=true:
//
//	VERIFYKIT_E2E_URL=http://127.0.0.1:8080 VERIFYKIT_E2E_DEV_SECRET=... go test -tags e2e ./testing
func e2eEnv(t *testing.T) (baseURL, secret string) {
	t.Helper()
	baseURL = strings.TrimRight(os.Getenv("VERIFYKIT_E2E_URL"), "/")
	secret = os.Getenv("VERIFYKIT_E2E_DEV_SECRET")
	if baseURL == "" || secret == "" {
		t.Skip("VERIFYKIT_E2E_URL and VERIFYKIT_E2E_DEV_SECRET not set (skipping e2e)")
	}
	return baseURL, secret
}

func waitForHTTP200(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	cli := &http.Client{Timeout: 2 * time.Second}
	var lastErr error
	for time.Now().Before(deadline) {
		resp, err := cli.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
			lastErr = fmt.Errorf("status=%d", resp.StatusCode)
		} else {
			lastErr = err
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s: %v", url, lastErr)
}

func httpJSON(t *testing.T, method, url string, headers map[string]string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	cli := &http.Client{Timeout: 10 * time.Second}
	resp, err := cli.Do(req)
	if err != nil {
		t.Fatalf("http do: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, data
}

func expect(t *testing.T, resp *http.Response, body []byte, status int) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, status, resp.StatusCode, string(body))
	}
}

func TestDevserverE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e in -short")
	}
	baseURL, secret := e2eEnv(t)
	waitForHTTP200(t, baseURL+"/healthz", 30*time.Second)
	dev := map[string]string{"X-DEV-SECRET": secret}

	t.Run("jwks", func(t *testing.T) {
		resp, body := httpJSON(t, http.MethodGet, baseURL+"/.well-known/jwks.json", nil, nil)
		expect(t, resp, body, http.StatusOK)
		keys, err := jwtkit.ParseJWKS(body)
		if err != nil {
			t.Fatalf("parse jwks: %v", err)
		}
		if len(keys.PublicKeys) < 1 {
			t.Fatalf("expected at least 1 key")
		}
	})

	suffix := time.Now().UnixNano()
	ownerEmail := fmt.Sprintf("owner-%d@e2e.test", suffix)
	inviteeEmail := fmt.Sprintf("invitee-%d@e2e.test", suffix)

	resp, body := httpJSON(t, http.MethodPost, baseURL+"/accounts/register", nil, map[string]any{
		"account_kind": "company",
		"email":        ownerEmail,
		"password":     "Password123!",
	})
	expect(t, resp, body, http.StatusCreated)
	var reg struct {
		AccountID string `json:"account_id"`
		CompanyID string `json:"company_id"`
	}
	if err := json.Unmarshal(body, &reg); err != nil {
		t.Fatalf("decode register: %v", err)
	}

	resp, body = httpJSON(t, http.MethodPost, baseURL+"/dev/mint", dev, map[string]any{
		"sub":        reg.AccountID,
		"kind":       "company",
		"company_id": reg.CompanyID,
	})
	expect(t, resp, body, http.StatusOK)
	var minted struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &minted); err != nil {
		t.Fatalf("decode mint: %v", err)
	}
	auth := map[string]string{"Authorization": "Bearer " + minted.Token}

	latestCode := func(t *testing.T, address string) string {
		t.Helper()
		resp, body := httpJSON(t, http.MethodGet, baseURL+"/dev/outbox?address="+url.QueryEscape(address), dev, nil)
		expect(t, resp, body, http.StatusOK)
		var out struct {
			Messages []struct {
				Message struct {
					Code string `json:"code"`
					Link string `json:"link"`
				} `json:"message"`
			} `json:"messages"`
		}
		if err := json.Unmarshal(body, &out); err != nil || len(out.Messages) == 0 {
			t.Fatalf("no messages for %s: %s", address, string(body))
		}
		last := out.Messages[len(out.Messages)-1].Message
		if last.Code != "" {
			return last.Code
		}
		u, err := url.Parse(last.Link)
		if err != nil {
			t.Fatalf("parse link: %v", err)
		}
		return u.Query().Get("token")
	}

	t.Run("verify_primary", func(t *testing.T) {
		resp, body := httpJSON(t, http.MethodPost, baseURL+"/identity/request-verification", auth, map[string]any{"address": ownerEmail})
		expect(t, resp, body, http.StatusAccepted)

		resp, body = httpJSON(t, http.MethodPost, baseURL+"/identity/confirm", auth, map[string]any{
			"address": ownerEmail,
			"code":    latestCode(t, ownerEmail),
		})
		expect(t, resp, body, http.StatusOK)

		resp, body = httpJSON(t, http.MethodGet, baseURL+"/verification/status?target="+url.QueryEscape(ownerEmail), auth, nil)
		expect(t, resp, body, http.StatusOK)
		if !strings.Contains(string(body), `"is_verified":true`) {
			t.Fatalf("expected verified status, got %s", string(body))
		}
	})

	t.Run("invite_and_accept", func(t *testing.T) {
		resp, body := httpJSON(t, http.MethodPost, baseURL+"/invitations", auth, map[string]any{
			"email": inviteeEmail,
			"role":  "employee",
		})
		expect(t, resp, body, http.StatusCreated)

		token := latestCode(t, inviteeEmail)
		resp, body = httpJSON(t, http.MethodPost, baseURL+"/invitations/accept", nil, map[string]any{
			"token":    token,
			"password": "Password123!",
		})
		expect(t, resp, body, http.StatusCreated)

		resp, body = httpJSON(t, http.MethodPost, baseURL+"/invitations/accept", nil, map[string]any{
			"token":    token,
			"password": "Password123!",
		})
		expect(t, resp, body, http.StatusUnauthorized)
	})

	t.Run("password_reset", func(t *testing.T) {
		resp, body := httpJSON(t, http.MethodPost, baseURL+"/auth/request-password-reset", nil, map[string]any{
			"email":        ownerEmail,
			"account_kind": "company",
		})
		expect(t, resp, body, http.StatusAccepted)
		code := latestCode(t, ownerEmail)

		resp, body = httpJSON(t, http.MethodPost, baseURL+"/auth/verify-reset-code", nil, map[string]any{
			"email": ownerEmail, "account_kind": "company", "code": code,
		})
		expect(t, resp, body, http.StatusOK)

		resp, body = httpJSON(t, http.MethodPost, baseURL+"/auth/complete-reset", nil, map[string]any{
			"email": ownerEmail, "account_kind": "company", "code": code, "new_password": "Another123!",
		})
		expect(t, resp, body, http.StatusOK)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, body := httpJSON(t, http.MethodGet, baseURL+"/metrics", nil, nil)
		expect(t, resp, body, http.StatusOK)
		if !strings.Contains(string(body), "verifykit_operations_total") {
			t.Fatalf("expected verifykit_operations_total in metrics")
		}
	})
}
