package core

import "time"

const (
	DefaultOTPTTL         = 10 * time.Minute
	DefaultResendCooldown = 60 * time.Second
	DefaultMaxAttempts    = 5
	DefaultGracePeriod    = 30 * 24 * time.Hour
	DefaultInvitationTTL  = 7 * 24 * time.Hour
	DefaultResetWindow    = 10 * time.Minute
)

// Config holds verification policy. Zero values fall back to the defaults above.
type Config struct {
	OTPTTL         time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	// GracePeriod is how long a detached address stays reserved for its former owner.
	GracePeriod   time.Duration
	InvitationTTL time.Duration
	// ResetWindow bounds the time between consuming a reset code and completing the reset.
	ResetWindow time.Duration

	// CodeSecret keys the OTP hash (HMAC-SHA256). Empty falls back to plain SHA-256.
	CodeSecret string

	// BaseURL is used to build invitation links, e.g. https://app.example.com.
	BaseURL string
	// InvitePath is appended to BaseURL; the token is passed as ?token=.
	InvitePath string
}

func (c Config) withDefaults() Config {
	if c.OTPTTL <= 0 {
		c.OTPTTL = DefaultOTPTTL
	}
	if c.ResendCooldown <= 0 {
		c.ResendCooldown = DefaultResendCooldown
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.InvitationTTL <= 0 {
		c.InvitationTTL = DefaultInvitationTTL
	}
	if c.ResetWindow <= 0 {
		c.ResetWindow = DefaultResetWindow
	}
	if c.InvitePath == "" {
		c.InvitePath = "/invitations/accept"
	}
	return c
}
