package core_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/PaulFidika/verifykit/core"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want core.ErrorClass
	}{
		{core.ErrAddressClaimed, core.ClassValidation},
		{core.ErrAlreadyVerified, core.ClassValidation},
		{core.ErrAlreadyExists, core.ClassValidation},
		{core.ErrInvalidCredential, core.ClassSecurity},
		{core.ErrSecondFactorRequired, core.ClassSecurity},
		{core.ErrInvalidToken, core.ClassSecurity},
		{core.ErrExpired, core.ClassTemporal},
		{&core.CooldownError{Err: core.ErrTooSoon, RetryAfter: time.Second}, core.ClassTemporal},
		{core.ErrAttemptsExceeded, core.ClassTemporal},
		{core.ErrAlreadyConsumed, core.ClassConsistency},
		{fmt.Errorf("insert: %w", core.ErrConflict), core.ClassConsistency},
		{errors.New("boom"), core.ClassInternal},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			require.Equal(t, tc.want, core.Classify(tc.err))
		})
	}
}

func TestCooldownError(t *testing.T) {
	err := fmt.Errorf("issue: %w", &core.CooldownError{Err: core.ErrRateLimited, RetryAfter: 1500 * time.Millisecond})
	require.ErrorIs(t, err, core.ErrRateLimited)
	require.Equal(t, "rate_limited", core.Code(err))

	d, ok := core.RetryAfter(err)
	require.True(t, ok)
	require.Equal(t, 1500*time.Millisecond, d)

	var ce *core.CooldownError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 2, ce.RetryAfterSeconds())

	_, ok = core.RetryAfter(core.ErrExpired)
	require.False(t, ok)
	require.Equal(t, "internal_error", core.Code(errors.New("x")))
}
