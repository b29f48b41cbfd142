package core_test

import (
	"testing"
	"time"

	"github.com/PaulFidika/verifykit/core"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	h := newHarness(t)
	acc := h.register(t, core.KindClient, "", "alice@co.com")

	st, err := h.svc.Status(h.ctx, "alice@co.com", "")
	require.NoError(t, err)
	require.Equal(t, core.VerificationStatus{CanResend: true}, st)

	_, err = h.svc.RequestVerification(h.ctx, acc.ID, "alice@co.com")
	require.NoError(t, err)
	h.clock.Advance(10 * time.Second)

	st, err = h.svc.Status(h.ctx, "alice@co.com", core.PurposeEmailVerification)
	require.NoError(t, err)
	require.True(t, st.HasPendingChallenge)
	require.False(t, st.CanResend)
	require.Equal(t, 50, st.RetryAfterSeconds)

	require.NoError(t, h.svc.ConfirmVerification(h.ctx, acc.ID, "alice@co.com", h.code(t, "alice@co.com")))
	st, err = h.svc.Status(h.ctx, "alice@co.com", "")
	require.NoError(t, err)
	require.True(t, st.IsVerified)
	require.False(t, st.HasPendingChallenge)
	require.True(t, st.CanResend)
}
