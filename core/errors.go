package core

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// OTP engine
	ErrChallengeNotFound = errors.New("challenge_not_found")
	ErrExpired           = errors.New("expired")
	ErrAttemptsExceeded  = errors.New("attempts_exceeded")
	ErrInvalidCode       = errors.New("invalid_code")
	ErrAlreadyConsumed   = errors.New("already_consumed")
	ErrRateLimited       = errors.New("rate_limited")
	ErrTooSoon           = errors.New("too_soon")

	// Email identity
	ErrAddressClaimed  = errors.New("address_claimed")
	ErrAlreadyVerified = errors.New("already_verified")
	ErrAlreadyExists   = errors.New("already_exists")
	ErrNoVerifiedEmail = errors.New("no_verified_email")
	ErrNoPendingEmail  = errors.New("no_pending_email")
	ErrSameAddress     = errors.New("same_address")
	ErrNotVerified     = errors.New("not_verified")

	// Gate
	ErrInvalidCredential     = errors.New("invalid_credential")
	ErrSecondFactorRequired  = errors.New("second_factor_required")
	ErrSecondFactorInvalid   = errors.New("second_factor_invalid")
	ErrSecondFactorNotSet    = errors.New("second_factor_not_enrolled")
	ErrSecondFactorActivated = errors.New("second_factor_already_enabled")

	// Password reset
	ErrResetNotAuthorized = errors.New("reset_not_authorized")
	ErrWeakPassword       = errors.New("weak_password")

	// Invitations
	ErrInvalidToken         = errors.New("invalid_token")
	ErrInvitationNotPending = errors.New("invitation_not_pending")
	ErrForbidden            = errors.New("forbidden")

	// Input
	ErrInvalidAddress     = errors.New("invalid_email")
	ErrInvalidAccountKind = errors.New("invalid_account_kind")
	ErrInvalidPurpose     = errors.New("invalid_purpose")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrInvalidRequest     = errors.New("invalid_request")

	// Store
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")

	errStoreUnavailable     = errors.New("store_unavailable")
	errEphemeralUnavailable = errors.New("ephemeral store unavailable")
)

// CooldownError reports how long the caller must wait before retrying.
type CooldownError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry after %ds", e.Err, e.RetryAfterSeconds())
}

func (e *CooldownError) Unwrap() error { return e.Err }

// RetryAfterSeconds rounds up so a client never retries early.
func (e *CooldownError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// RetryAfter extracts the cooldown carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ce *CooldownError
	if errors.As(err, &ce) {
		return ce.RetryAfter, true
	}
	return 0, false
}

type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassValidation
	ClassSecurity
	ClassTemporal
	ClassConsistency
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassSecurity:
		return "security"
	case ClassTemporal:
		return "temporal"
	case ClassConsistency:
		return "consistency"
	}
	return "internal"
}

var errorClasses = []struct {
	err   error
	class ErrorClass
}{
	{ErrAddressClaimed, ClassValidation},
	{ErrAlreadyVerified, ClassValidation},
	{ErrAlreadyExists, ClassValidation},
	{ErrNoVerifiedEmail, ClassValidation},
	{ErrNoPendingEmail, ClassValidation},
	{ErrSameAddress, ClassValidation},
	{ErrNotVerified, ClassValidation},
	{ErrWeakPassword, ClassValidation},
	{ErrInvitationNotPending, ClassValidation},
	{ErrSecondFactorNotSet, ClassValidation},
	{ErrSecondFactorActivated, ClassValidation},
	{ErrInvalidAddress, ClassValidation},
	{ErrInvalidAccountKind, ClassValidation},
	{ErrInvalidPurpose, ClassValidation},
	{ErrInvalidRole, ClassValidation},
	{ErrInvalidRequest, ClassValidation},
	{ErrNotFound, ClassValidation},

	{ErrInvalidCredential, ClassSecurity},
	{ErrSecondFactorRequired, ClassSecurity},
	{ErrSecondFactorInvalid, ClassSecurity},
	{ErrInvalidToken, ClassSecurity},
	{ErrInvalidCode, ClassSecurity},
	{ErrChallengeNotFound, ClassSecurity},
	{ErrResetNotAuthorized, ClassSecurity},
	{ErrForbidden, ClassSecurity},

	{ErrExpired, ClassTemporal},
	{ErrRateLimited, ClassTemporal},
	{ErrTooSoon, ClassTemporal},
	{ErrAttemptsExceeded, ClassTemporal},

	{ErrAlreadyConsumed, ClassConsistency},
	{ErrConflict, ClassConsistency},
}

// Classify places err in the error taxonomy. Unknown errors are internal.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassInternal
	}
	for _, ec := range errorClasses {
		if errors.Is(err, ec.err) {
			return ec.class
		}
	}
	return ClassInternal
}

// Code returns the snake_case code of the first known sentinel err wraps, or "internal_error".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorClasses {
		if errors.Is(err, ec.err) {
			return ec.err.Error()
		}
	}
	return "internal_error"
}
