package core

import (
	"strings"
	"time"

	pwhash "github.com/PaulFidika/verifykit/password"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Gate authorizes changes to a locked channel: the current password must match and,
// when the account has a second factor, so must a TOTP code. It performs no I/O.
type Gate struct {
	Clock Clock
}

// Authorize returns whether a second factor took part in the decision.
func (g Gate) Authorize(acc *Account, currentPassword, secondFactorCode string) (bool, error) {
	if acc == nil {
		return false, ErrInvalidCredential
	}
	ok, err := pwhash.Verify(acc.PasswordHash, currentPassword)
	if err != nil || !ok {
		return false, ErrInvalidCredential
	}
	if err := g.CheckSecondFactor(acc, secondFactorCode); err != nil {
		return false, err
	}
	return acc.SecondFactorEnabled, nil
}

// CheckSecondFactor passes when the account has no second factor enabled.
func (g Gate) CheckSecondFactor(acc *Account, code string) error {
	if acc == nil || !acc.SecondFactorEnabled {
		return nil
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrSecondFactorRequired
	}
	if !g.totpValid(acc.SecondFactorSecret, code) {
		return ErrSecondFactorInvalid
	}
	return nil
}

func (g Gate) totpValid(secret, code string) bool {
	if secret == "" {
		return false
	}
	now := time.Now()
	if g.Clock != nil {
		now = g.Clock.Now()
	}
	ok, err := totp.ValidateCustom(code, secret, now, totpOpts)
	return err == nil && ok
}

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}
