package core

import (
	"strings"
	"time"
)

// AccountKind is the role an account was created with.
type AccountKind string

const (
	KindEmployee AccountKind = "employee"
	KindCompany  AccountKind = "company"
	KindManager  AccountKind = "manager"
	KindClient   AccountKind = "client"
)

// ParseAccountKind accepts any casing ("MANAGER", "Manager", "manager").
func ParseAccountKind(s string) (AccountKind, error) {
	switch k := AccountKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindEmployee, KindCompany, KindManager, KindClient:
		return k, nil
	}
	return "", ErrInvalidAccountKind
}

// Account is the opaque principal that owns email records.
type Account struct {
	ID           string
	Kind         AccountKind
	CompanyID    string
	FirstName    string
	LastName     string
	PasswordHash string
	// SecondFactorSecret may be set while SecondFactorEnabled is false during enrollment.
	SecondFactorEnabled bool
	SecondFactorSecret  string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CanManageCompany reports whether the account may issue or revoke invitations for companyID.
func (a *Account) CanManageCompany(companyID string) bool {
	if a == nil || companyID == "" || a.CompanyID != companyID {
		return false
	}
	return a.Kind == KindCompany || a.Kind == KindManager
}

type EmailStatus string

const (
	EmailUnverified      EmailStatus = "unverified"
	EmailPending         EmailStatus = "pending_verification"
	EmailVerifiedPrimary EmailStatus = "verified_primary"
	EmailDetached        EmailStatus = "detached"
)

// EmailRecord binds an address to an account. Status only changes through the
// transition methods below.
type EmailRecord struct {
	ID             string
	AccountID      string
	Address        string
	Status         EmailStatus
	VerifiedAt     *time.Time
	DetachedAt     *time.Time
	GraceExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Working reports whether the record is the account's editable, not yet proven address.
func (e EmailRecord) Working() bool {
	return e.Status == EmailUnverified || e.Status == EmailPending
}

// Claims reports whether the record keeps other accounts from claiming its address at now.
// Detached addresses are released once the grace period elapses; nothing is rewritten.
func (e EmailRecord) Claims(now time.Time) bool {
	switch e.Status {
	case EmailVerifiedPrimary:
		return true
	case EmailDetached:
		return e.GraceExpiresAt != nil && now.Before(*e.GraceExpiresAt)
	}
	return false
}

func (e *EmailRecord) setUnverified(address string, now time.Time) {
	e.Address = address
	e.Status = EmailUnverified
	e.UpdatedAt = now
}

func (e *EmailRecord) setPending(address string, now time.Time) {
	e.Address = address
	e.Status = EmailPending
	e.UpdatedAt = now
}

func (e *EmailRecord) promote(now time.Time) {
	t := now
	e.Status = EmailVerifiedPrimary
	e.VerifiedAt = &t
	e.DetachedAt = nil
	e.GraceExpiresAt = nil
	e.UpdatedAt = now
}

func (e *EmailRecord) detach(now time.Time, grace time.Duration) {
	t := now
	g := now.Add(grace)
	e.Status = EmailDetached
	e.DetachedAt = &t
	e.GraceExpiresAt = &g
	e.UpdatedAt = now
}

// Purpose scopes an OTP challenge.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
	PurposeEmailChange       Purpose = "email_change"
)

func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(strings.TrimSpace(s)); p {
	case PurposeEmailVerification, PurposePasswordReset, PurposeEmailChange:
		return p, nil
	case "":
		return PurposeEmailVerification, nil
	}
	return "", ErrInvalidPurpose
}

type ChallengeState string

const (
	ChallengeActive      ChallengeState = "active"
	ChallengeConsumed    ChallengeState = "consumed"
	ChallengeExpired     ChallengeState = "expired"
	ChallengeInvalidated ChallengeState = "invalidated"
	ChallengeExhausted   ChallengeState = "exhausted"
)

// OTPChallenge stores the hash of a one-time code issued for (Target, Purpose).
type OTPChallenge struct {
	ID                string
	Target            string
	Purpose           Purpose
	CodeHash          string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	AttemptCount      int
	MaxAttempts       int
	ResendAvailableAt time.Time
	ConsumedAt        *time.Time
	// InvalidatedAt is set when a newer challenge supersedes this one or its attempts run out.
	InvalidatedAt *time.Time
}

func (c OTPChallenge) State(now time.Time) ChallengeState {
	switch {
	case c.ConsumedAt != nil:
		return ChallengeConsumed
	case c.InvalidatedAt != nil:
		return ChallengeInvalidated
	case !now.Before(c.ExpiresAt):
		return ChallengeExpired
	case c.AttemptCount >= c.MaxAttempts:
		return ChallengeExhausted
	}
	return ChallengeActive
}

// Open reports whether the challenge has neither been consumed nor invalidated.
func (c OTPChallenge) Open() bool {
	return c.ConsumedAt == nil && c.InvalidatedAt == nil
}

func (c *OTPChallenge) invalidate(now time.Time) {
	t := now
	c.InvalidatedAt = &t
}

func (c *OTPChallenge) consume(now time.Time) {
	t := now
	c.ConsumedAt = &t
}

// ChallengeHandle is what callers learn about an issued challenge. It never carries the code.
type ChallengeHandle struct {
	ID                string    `json:"challenge_id"`
	Target            string    `json:"target"`
	Purpose           Purpose   `json:"purpose"`
	ExpiresAt         time.Time `json:"expires_at"`
	ResendAvailableAt time.Time `json:"resend_available_at"`
}

func (c OTPChallenge) Handle() ChallengeHandle {
	return ChallengeHandle{
		ID:                c.ID,
		Target:            c.Target,
		Purpose:           c.Purpose,
		ExpiresAt:         c.ExpiresAt,
		ResendAvailableAt: c.ResendAvailableAt,
	}
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

// Invitation is a single-use token that bootstraps an account for a company.
// Only the SHA-256 of the token is kept.
type Invitation struct {
	ID                string           `json:"id"`
	IssuerAccountID   string           `json:"issuer_account_id"`
	CompanyID         string           `json:"company_id"`
	Email             string           `json:"email"`
	Role              AccountKind      `json:"role"`
	TeamID            string           `json:"team_id,omitempty"`
	TokenHash         string           `json:"-"`
	Status            InvitationStatus `json:"status"`
	ExpiresAt         time.Time        `json:"expires_at"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	AcceptedAccountID string           `json:"accepted_account_id,omitempty"`
}

func (i *Invitation) transition(to InvitationStatus, now time.Time) {
	i.Status = to
	i.UpdatedAt = now
}

type ChangeType string

const (
	ChangeVerification    ChangeType = "verification"
	ChangeSecure          ChangeType = "secure_change"
	ChangeEditUnverified  ChangeType = "edit_unverified"
	ChangeInvitationBound ChangeType = "invitation"
)

type ChangeStatus string

const (
	ChangeRequested ChangeStatus = "requested"
	ChangeCompleted ChangeStatus = "completed"
	ChangeRejected  ChangeStatus = "rejected"
)

// EmailChangeLog is an append-only audit row.
type EmailChangeLog struct {
	ID               string       `json:"id"`
	AccountID        string       `json:"account_id"`
	OldEmail         string       `json:"old_email,omitempty"`
	NewEmail         string       `json:"new_email"`
	ChangeType       ChangeType   `json:"change_type"`
	Timestamp        time.Time    `json:"timestamp"`
	IPAddress        string       `json:"ip_address,omitempty"`
	UserAgent        string       `json:"user_agent,omitempty"`
	SecondFactorUsed bool         `json:"second_factor_used"`
	Status           ChangeStatus `json:"status"`
	Reason           string       `json:"reason,omitempty"`
}

// VerificationStatus is the pull-based view of a target's verification state.
type VerificationStatus struct {
	IsVerified          bool `json:"is_verified"`
	HasPendingChallenge bool `json:"has_pending_challenge"`
	CanResend           bool `json:"can_resend"`
	RetryAfterSeconds   int  `json:"retry_after_seconds"`
}
