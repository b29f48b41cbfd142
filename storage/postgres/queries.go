package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/PaulFidika/verifykit/core"
)

func (t *tx) advisoryLock(ctx context.Context, key string) error {
	_, err := t.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return mapErr(err)
}

func (t *tx) LockAddress(ctx context.Context, address string) error {
	return t.advisoryLock(ctx, "address:"+address)
}

func (t *tx) LockChallengePair(ctx context.Context, target string, purpose core.Purpose) error {
	return t.advisoryLock(ctx, "otp:"+string(purpose)+":"+target)
}

func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Accounts

const accountColumns = `id, kind, company_id, first_name, last_name, password_hash,
	second_factor_enabled, second_factor_secret, created_at, updated_at`

func (t *tx) GetAccount(ctx context.Context, id string) (*core.Account, error) {
	var a core.Account
	err := t.q.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM verify.accounts
		WHERE id=$1
		FOR UPDATE
	`, id).Scan(&a.ID, &a.Kind, &a.CompanyID, &a.FirstName, &a.LastName, &a.PasswordHash,
		&a.SecondFactorEnabled, &a.SecondFactorSecret, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (t *tx) InsertAccount(ctx context.Context, a *core.Account) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO verify.accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.Kind, a.CompanyID, a.FirstName, a.LastName, a.PasswordHash,
		a.SecondFactorEnabled, a.SecondFactorSecret, a.CreatedAt, a.UpdatedAt)
	return mapErr(err)
}

func (t *tx) UpdateAccount(ctx context.Context, a *core.Account) error {
	return mustAffect(t.q.ExecContext(ctx, `
		UPDATE verify.accounts
		SET first_name=$2, last_name=$3, password_hash=$4,
			second_factor_enabled=$5, second_factor_secret=$6, updated_at=$7
		WHERE id=$1
	`, a.ID, a.FirstName, a.LastName, a.PasswordHash, a.SecondFactorEnabled, a.SecondFactorSecret, a.UpdatedAt))
}

func (t *tx) AddTeamMember(ctx context.Context, teamID, accountID string) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO verify.team_members (team_id, account_id)
		VALUES ($1, $2)
		ON CONFLICT (team_id, account_id) DO NOTHING
	`, teamID, accountID)
	return mapErr(err)
}

// Email records

const emailColumns = `id, account_id, address, status, verified_at, detached_at, grace_expires_at, created_at, updated_at`

func scanEmails(rows *sql.Rows, err error) ([]core.EmailRecord, error) {
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []core.EmailRecord
	for rows.Next() {
		var e core.EmailRecord
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Address, &e.Status, &e.VerifiedAt, &e.DetachedAt,
			&e.GraceExpiresAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, e)
	}
	return out, mapErr(rows.Err())
}

func (t *tx) EmailsByAccount(ctx context.Context, accountID string) ([]core.EmailRecord, error) {
	return scanEmails(t.q.QueryContext(ctx, `
		SELECT `+emailColumns+`
		FROM verify.email_records
		WHERE account_id=$1
		ORDER BY created_at ASC, id ASC
	`, accountID))
}

func (t *tx) EmailsByAddress(ctx context.Context, address string) ([]core.EmailRecord, error) {
	return scanEmails(t.q.QueryContext(ctx, `
		SELECT `+emailColumns+`
		FROM verify.email_records
		WHERE address=$1
		ORDER BY created_at ASC, id ASC
	`, address))
}

func (t *tx) InsertEmail(ctx context.Context, e *core.EmailRecord) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO verify.email_records (`+emailColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.AccountID, e.Address, e.Status, e.VerifiedAt, e.DetachedAt, e.GraceExpiresAt, e.CreatedAt, e.UpdatedAt)
	return mapErr(err)
}

func (t *tx) UpdateEmail(ctx context.Context, e *core.EmailRecord) error {
	return mustAffect(t.q.ExecContext(ctx, `
		UPDATE verify.email_records
		SET address=$2, status=$3, verified_at=$4, detached_at=$5, grace_expires_at=$6, updated_at=$7
		WHERE id=$1
	`, e.ID, e.Address, e.Status, e.VerifiedAt, e.DetachedAt, e.GraceExpiresAt, e.UpdatedAt))
}

// Challenges

func (t *tx) LatestChallenge(ctx context.Context, target string, purpose core.Purpose) (*core.OTPChallenge, error) {
	var c core.OTPChallenge
	err := t.q.QueryRowContext(ctx, `
		SELECT id, target, purpose, code_hash, issued_at, expires_at, attempt_count, max_attempts,
			resend_available_at, consumed_at, invalidated_at
		FROM verify.otp_challenges
		WHERE target=$1 AND purpose=$2
		ORDER BY issued_at DESC
		LIMIT 1
		FOR UPDATE
	`, target, purpose).Scan(&c.ID, &c.Target, &c.Purpose, &c.CodeHash, &c.IssuedAt, &c.ExpiresAt,
		&c.AttemptCount, &c.MaxAttempts, &c.ResendAvailableAt, &c.ConsumedAt, &c.InvalidatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (t *tx) InsertChallenge(ctx context.Context, c *core.OTPChallenge) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO verify.otp_challenges (id, target, purpose, code_hash, issued_at, expires_at,
			attempt_count, max_attempts, resend_available_at, consumed_at, invalidated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.Target, c.Purpose, c.CodeHash, c.IssuedAt, c.ExpiresAt,
		c.AttemptCount, c.MaxAttempts, c.ResendAvailableAt, c.ConsumedAt, c.InvalidatedAt)
	return mapErr(err)
}

func (t *tx) UpdateChallenge(ctx context.Context, c *core.OTPChallenge) error {
	return mustAffect(t.q.ExecContext(ctx, `
		UPDATE verify.otp_challenges
		SET attempt_count=$2, consumed_at=$3, invalidated_at=$4
		WHERE id=$1
	`, c.ID, c.AttemptCount, c.ConsumedAt, c.InvalidatedAt))
}

// Invitations

const invitationColumns = `id, issuer_account_id, company_id, email, role, team_id, token_hash,
	status, expires_at, created_at, updated_at, accepted_account_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(r rowScanner) (*core.Invitation, error) {
	var inv core.Invitation
	if err := r.Scan(&inv.ID, &inv.IssuerAccountID, &inv.CompanyID, &inv.Email, &inv.Role, &inv.TeamID,
		&inv.TokenHash, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt, &inv.AcceptedAccountID); err != nil {
		return nil, mapErr(err)
	}
	return &inv, nil
}

func scanInvitations(rows *sql.Rows, err error) ([]core.Invitation, error) {
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []core.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, mapErr(rows.Err())
}

func (t *tx) InsertInvitation(ctx context.Context, inv *core.Invitation) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO verify.invitations (`+invitationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, inv.ID, inv.IssuerAccountID, inv.CompanyID, inv.Email, inv.Role, inv.TeamID, inv.TokenHash,
		inv.Status, inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt, inv.AcceptedAccountID)
	return mapErr(err)
}

func (t *tx) GetInvitation(ctx context.Context, id string) (*core.Invitation, error) {
	return scanInvitation(t.q.QueryRowContext(ctx, `
		SELECT `+invitationColumns+`
		FROM verify.invitations
		WHERE id=$1
		FOR UPDATE
	`, id))
}

func (t *tx) InvitationByTokenHash(ctx context.Context, tokenHash string) (*core.Invitation, error) {
	return scanInvitation(t.q.QueryRowContext(ctx, `
		SELECT `+invitationColumns+`
		FROM verify.invitations
		WHERE token_hash=$1
		FOR UPDATE
	`, tokenHash))
}

func (t *tx) UpdateInvitation(ctx context.Context, inv *core.Invitation) error {
	return mustAffect(t.q.ExecContext(ctx, `
		UPDATE verify.invitations
		SET status=$2, updated_at=$3, accepted_account_id=$4
		WHERE id=$1
	`, inv.ID, inv.Status, inv.UpdatedAt, inv.AcceptedAccountID))
}

func (t *tx) PendingInvitations(ctx context.Context, companyID, email string) ([]core.Invitation, error) {
	return scanInvitations(t.q.QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM verify.invitations
		WHERE company_id=$1 AND email=$2 AND status='pending'
		ORDER BY created_at DESC
		FOR UPDATE
	`, companyID, email))
}

func (t *tx) ListInvitations(ctx context.Context, companyID string, status core.InvitationStatus) ([]core.Invitation, error) {
	return scanInvitations(t.q.QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM verify.invitations
		WHERE company_id=$1 AND ($2='' OR status=$2)
		ORDER BY created_at DESC
	`, companyID, status))
}

func (t *tx) ExpirePendingInvitations(ctx context.Context, now time.Time, limit int) (int, error) {
	res, err := t.q.ExecContext(ctx, `
		UPDATE verify.invitations
		SET status='expired', updated_at=$1
		WHERE id IN (
			SELECT id FROM verify.invitations
			WHERE status='pending' AND expires_at <= $1
			ORDER BY expires_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
	`, now, limit)
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapErr(err)
	}
	return int(n), nil
}

// Change log

func (t *tx) AppendChangeLog(ctx context.Context, e *core.EmailChangeLog) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO verify.email_change_log (id, account_id, old_email, new_email, change_type, ts,
			ip_address, user_agent, second_factor_used, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.AccountID, e.OldEmail, e.NewEmail, e.ChangeType, e.Timestamp,
		e.IPAddress, e.UserAgent, e.SecondFactorUsed, e.Status, e.Reason)
	return mapErr(err)
}

func (t *tx) ChangeLogByAccount(ctx context.Context, accountID string) ([]core.EmailChangeLog, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, account_id, old_email, new_email, change_type, ts, ip_address, user_agent,
			second_factor_used, status, reason
		FROM verify.email_change_log
		WHERE account_id=$1
		ORDER BY ts ASC, id ASC
	`, accountID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []core.EmailChangeLog
	for rows.Next() {
		var e core.EmailChangeLog
		if err := rows.Scan(&e.ID, &e.AccountID, &e.OldEmail, &e.NewEmail, &e.ChangeType, &e.Timestamp,
			&e.IPAddress, &e.UserAgent, &e.SecondFactorUsed, &e.Status, &e.Reason); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, e)
	}
	return out, mapErr(rows.Err())
}
