package authhttp

import (
	"time"

	memorylimiter "github.com/PaulFidika/verifykit/ratelimit/memory"
	redislimiter "github.com/PaulFidika/verifykit/ratelimit/redis"
)

// Limit configures a named rate limit bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultRateLimits returns the built-in per-endpoint rate limits.
//
// These limits are enforced per client IP (as determined by the Service's ClientIPFunc).
// They sit in front of the per-target OTP cooldown, which the core enforces on its own.
func DefaultRateLimits() map[string]Limit {
	return map[string]Limit{
		"default": {Limit: 120, Window: time.Minute},

		// One-time codes
		RLVerificationSendCode:   {Limit: 10, Window: 10 * time.Minute},
		RLVerificationVerifyCode: {Limit: 30, Window: 10 * time.Minute},
		RLVerificationStatus:     {Limit: 120, Window: time.Minute},

		// Email identity
		RLIdentityRequestVerification: {Limit: 6, Window: 10 * time.Minute},
		RLIdentityConfirm:             {Limit: 10, Window: 10 * time.Minute},
		RLIdentityRequestChange:       {Limit: 6, Window: time.Hour},
		RLIdentityEditUnverified:      {Limit: 12, Window: time.Hour},
		RLIdentityResendChangeCode:    {Limit: 6, Window: 10 * time.Minute},
		RLIdentityRead:                {Limit: 120, Window: time.Minute},

		// Second factor
		RLSecondFactorEnroll:   {Limit: 6, Window: time.Hour},
		RLSecondFactorActivate: {Limit: 10, Window: 10 * time.Minute},
		RLSecondFactorDisable:  {Limit: 6, Window: time.Hour},

		// Password reset
		RLPasswordResetRequest:  {Limit: 6, Window: 10 * time.Minute},
		RLPasswordResetVerify:   {Limit: 10, Window: 10 * time.Minute},
		RLPasswordResetComplete: {Limit: 10, Window: 10 * time.Minute},

		// Accounts + invitations
		RLAccountRegister:  {Limit: 10, Window: time.Hour},
		RLInvitationCreate: {Limit: 60, Window: time.Hour},
		RLInvitationAccept: {Limit: 10, Window: 10 * time.Minute},
		RLInvitationRevoke: {Limit: 60, Window: time.Hour},
		RLInvitationList:   {Limit: 120, Window: time.Minute},
	}
}

func ToMemoryLimits(in map[string]Limit) map[string]memorylimiter.Limit {
	out := make(map[string]memorylimiter.Limit, len(in))
	for k, v := range in {
		out[k] = memorylimiter.Limit{Limit: v.Limit, Window: v.Window}
	}
	return out
}

func ToRedisLimits(in map[string]Limit) map[string]redislimiter.Limit {
	out := make(map[string]redislimiter.Limit, len(in))
	for k, v := range in {
		out[k] = redislimiter.Limit{Limit: v.Limit, Window: v.Window}
	}
	return out
}
