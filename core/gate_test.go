package core_test

import (
	"testing"
	"time"

	"github.com/PaulFidika/verifykit/core"
	pwhash "github.com/PaulFidika/verifykit/password"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGate_Authorize(t *testing.T) {
	clock := core.NewManualClock(t0)
	gate := core.Gate{Clock: clock}

	hash, err := pwhash.Hash(testPassword)
	require.NoError(t, err)
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "a@co.com"})
	require.NoError(t, err)
	good, err := totp.GenerateCode(key.Secret(), clock.Now())
	require.NoError(t, err)

	plain := &core.Account{PasswordHash: hash}
	withTOTP := &core.Account{PasswordHash: hash, SecondFactorEnabled: true, SecondFactorSecret: key.Secret()}

	cases := []struct {
		name     string
		acc      *core.Account
		password string
		code     string
		wantErr  error
		wantUsed bool
	}{
		{name: "password only", acc: plain, password: testPassword},
		{name: "wrong password", acc: plain, password: "nope", wantErr: core.ErrInvalidCredential},
		{name: "code ignored without second factor", acc: plain, password: testPassword, code: "123456"},
		{name: "second factor missing", acc: withTOTP, password: testPassword, wantErr: core.ErrSecondFactorRequired},
		{name: "wrong password wins over missing code", acc: withTOTP, password: "nope", wantErr: core.ErrInvalidCredential},
		{name: "second factor ok", acc: withTOTP, password: testPassword, code: good, wantUsed: true},
		{name: "nil account", acc: nil, password: testPassword, wantErr: core.ErrInvalidCredential},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			used, err := gate.Authorize(tc.acc, tc.password, tc.code)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantUsed, used)
		})
	}
}

func TestGate_SecondFactorWindow(t *testing.T) {
	clock := core.NewManualClock(t0)
	gate := core.Gate{Clock: clock}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "a@co.com"})
	require.NoError(t, err)
	acc := &core.Account{SecondFactorEnabled: true, SecondFactorSecret: key.Secret()}

	code, err := totp.GenerateCode(key.Secret(), clock.Now())
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	require.NoError(t, gate.CheckSecondFactor(acc, code))

	clock.Advance(5 * time.Minute)
	require.ErrorIs(t, gate.CheckSecondFactor(acc, code), core.ErrSecondFactorInvalid)
}

func TestGate_AcceptsLegacyBcrypt(t *testing.T) {
	b, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	used, err := core.Gate{}.Authorize(&core.Account{PasswordHash: string(b)}, testPassword, "")
	require.NoError(t, err)
	require.False(t, used)
}
