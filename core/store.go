package core

import (
	"context"
	"time"
)

// Store runs fn inside a single atomic unit. Implementations commit when fn returns nil
// and roll back otherwise. fn must not call WithinTx again.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view of the verification tables. Lookups that return a
// single row return ErrNotFound when the row is missing, except LatestChallenge
// which returns (nil, nil).
//
// A unit that takes both locks takes LockAddress before LockChallengePair.
type Tx interface {
	// GetAccount returns the account and holds it locked until the unit ends.
	GetAccount(ctx context.Context, id string) (*Account, error)
	InsertAccount(ctx context.Context, a *Account) error
	UpdateAccount(ctx context.Context, a *Account) error
	AddTeamMember(ctx context.Context, teamID, accountID string) error

	EmailsByAccount(ctx context.Context, accountID string) ([]EmailRecord, error)
	EmailsByAddress(ctx context.Context, address string) ([]EmailRecord, error)
	InsertEmail(ctx context.Context, e *EmailRecord) error
	UpdateEmail(ctx context.Context, e *EmailRecord) error
	// LockAddress serializes claims on one address across accounts.
	LockAddress(ctx context.Context, address string) error

	// LockChallengePair serializes issue and validation for one (target, purpose).
	LockChallengePair(ctx context.Context, target string, purpose Purpose) error
	LatestChallenge(ctx context.Context, target string, purpose Purpose) (*OTPChallenge, error)
	InsertChallenge(ctx context.Context, c *OTPChallenge) error
	UpdateChallenge(ctx context.Context, c *OTPChallenge) error

	InsertInvitation(ctx context.Context, inv *Invitation) error
	GetInvitation(ctx context.Context, id string) (*Invitation, error)
	// InvitationByTokenHash returns the invitation locked until the unit ends.
	InvitationByTokenHash(ctx context.Context, tokenHash string) (*Invitation, error)
	UpdateInvitation(ctx context.Context, inv *Invitation) error
	PendingInvitations(ctx context.Context, companyID, email string) ([]Invitation, error)
	ListInvitations(ctx context.Context, companyID string, status InvitationStatus) ([]Invitation, error)
	// ExpirePendingInvitations flips up to limit overdue pending invitations to expired.
	ExpirePendingInvitations(ctx context.Context, now time.Time, limit int) (int, error)

	AppendChangeLog(ctx context.Context, entry *EmailChangeLog) error
	ChangeLogByAccount(ctx context.Context, accountID string) ([]EmailChangeLog, error)
}
