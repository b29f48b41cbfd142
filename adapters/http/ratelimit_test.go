package authhttp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	memorylimiter "github.com/PaulFidika/verifykit/ratelimit/memory"
	"github.com/stretchr/testify/require"
)

type brokenLimiter struct{}

func (brokenLimiter) AllowNamed(string, string) (bool, error) { return false, errors.New("redis down") }

func TestService_RateLimitsPerIP(t *testing.T) {
	env := newTestEnv(t)
	limits := ToMemoryLimits(map[string]Limit{RLPasswordResetRequest: {Limit: 2, Window: time.Minute}})
	env.s.WithRateLimiter(memorylimiter.New(limits)).
		WithClientIPFunc(func(*http.Request) string { return "198.51.100.10" })

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/auth/request-password-reset", `{"email":"a@co.com","account_kind":"client"}`, "")
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	w := env.do(t, http.MethodPost, "/auth/request-password-reset", `{"email":"a@co.com","account_kind":"client"}`, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.JSONEq(t, `{"error":"rate_limited"}`, w.Body.String())
}

func TestService_RateLimiterFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	env.s.WithRateLimiter(brokenLimiter{}).
		WithClientIPFunc(func(*http.Request) string { return "198.51.100.10" })

	w := env.do(t, http.MethodPost, "/auth/request-password-reset", `{"email":"a@co.com","account_kind":"client"}`, "")
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestService_UnknownClientIPSkipsLimiter(t *testing.T) {
	env := newTestEnv(t)
	limits := ToMemoryLimits(map[string]Limit{RLPasswordResetRequest: {Limit: 1, Window: time.Minute}})
	env.s.WithRateLimiter(memorylimiter.New(limits)).
		WithClientIPFunc(func(*http.Request) string { return "" })

	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodPost, "/auth/request-password-reset", `{"email":"a@co.com","account_kind":"client"}`, "")
		require.Equal(t, http.StatusAccepted, w.Code)
	}
}

func TestAllowNamed(t *testing.T) {
	rl := memorylimiter.New(ToMemoryLimits(map[string]Limit{"host_route": {Limit: 1, Window: time.Minute}}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "8.8.8.8:1234"

	require.True(t, AllowNamed(r, rl, "host_route"))
	require.False(t, AllowNamed(r, rl, "host_route"))
	require.True(t, AllowNamed(r, nil, "host_route"))
}

func TestDefaultRateLimits_CoverEveryBucket(t *testing.T) {
	limits := DefaultRateLimits()
	for _, b := range []string{
		RLVerificationSendCode, RLVerificationVerifyCode, RLVerificationStatus,
		RLIdentityRequestVerification, RLIdentityConfirm, RLIdentityRequestChange,
		RLIdentityEditUnverified, RLIdentityResendChangeCode, RLIdentityRead,
		RLSecondFactorEnroll, RLSecondFactorActivate, RLSecondFactorDisable,
		RLPasswordResetRequest, RLPasswordResetVerify, RLPasswordResetComplete,
		RLAccountRegister, RLInvitationCreate, RLInvitationAccept, RLInvitationRevoke, RLInvitationList,
	} {
		l, ok := limits[b]
		require.True(t, ok, b)
		require.True(t, l.Limit > 0 && l.Window > 0, b)
	}
}
