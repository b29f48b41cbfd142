package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// InviteParams describes a new invitation. TeamID is optional.
type InviteParams struct {
	CompanyID string
	Email     string
	Role      string
	TeamID    string
	InvitedBy string
}

func parseInviteRole(s string) (AccountKind, error) {
	k, err := ParseAccountKind(s)
	if err != nil || k == KindCompany {
		return "", ErrInvalidRole
	}
	return k, nil
}

// Invite issues a single-use token for email. The plaintext token is returned once and
// only its hash is stored. A previous pending invitation for the same company and email
// is revoked.
func (s *Service) Invite(ctx context.Context, p InviteParams) (inv *Invitation, token string, err error) {
	ctx, end := s.begin(ctx, "invitation.invite", "company_id", p.CompanyID, "invited_by", p.InvitedBy)
	defer func() { end(&err) }()

	email, err := NormalizeEmail(p.Email)
	if err != nil {
		return nil, "", err
	}
	role, err := parseInviteRole(p.Role)
	if err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(p.CompanyID) == "" {
		return nil, "", ErrInvalidRequest
	}
	token, err = randB64(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		issuer, err := tx.GetAccount(ctx, p.InvitedBy)
		if err != nil {
			if isNotFound(err) {
				return ErrForbidden
			}
			return err
		}
		if !issuer.CanManageCompany(p.CompanyID) {
			return ErrForbidden
		}
		now := s.now()
		if err := tx.LockAddress(ctx, email); err != nil {
			return err
		}
		claimed, err := s.claimedByOther(ctx, tx, email, "", now)
		if err != nil {
			return err
		}
		if claimed {
			return ErrAlreadyExists
		}
		prior, err := tx.PendingInvitations(ctx, p.CompanyID, email)
		if err != nil {
			return err
		}
		for i := range prior {
			prior[i].transition(InvitationRevoked, now)
			if err := tx.UpdateInvitation(ctx, &prior[i]); err != nil {
				return err
			}
		}
		inv = &Invitation{
			ID:              newID(),
			IssuerAccountID: issuer.ID,
			CompanyID:       p.CompanyID,
			Email:           email,
			Role:            role,
			TeamID:          strings.TrimSpace(p.TeamID),
			TokenHash:       sha256Hex(token),
			Status:          InvitationPending,
			ExpiresAt:       now.Add(s.cfg.InvitationTTL),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return tx.InsertInvitation(ctx, inv)
	})
	if err != nil {
		return nil, "", err
	}
	s.notify(ctx, email, Message{
		Kind:    MessageInvitation,
		Subject: "You have been invited",
		Body:    fmt.Sprintf("You have been invited to join as %s. The link expires on %s.", role, inv.ExpiresAt.Format("2006-01-02 15:04 MST")),
		Link:    s.inviteLink(token),
	})
	return inv, token, nil
}

func (s *Service) inviteLink(token string) string {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	return base + s.cfg.InvitePath + "?token=" + url.QueryEscape(token)
}

// AcceptParams carries what the invitee supplies.
type AcceptParams struct {
	Token     string
	Password  string
	FirstName string
	LastName  string
}

// Accept redeems a token. Creating the account, its verified email, the team link and
// the status flip happen in one unit; a second Accept with the same token fails with
// ErrInvalidToken.
func (s *Service) Accept(ctx context.Context, p AcceptParams) (accountID string, err error) {
	ctx, end := s.begin(ctx, "invitation.accept")
	defer func() { end(&err) }()

	token := strings.TrimSpace(p.Token)
	if token == "" {
		return "", ErrInvalidToken
	}
	hash, err := hashNewPassword(p.Password)
	if err != nil {
		return "", err
	}
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		inv, err := tx.InvitationByTokenHash(ctx, sha256Hex(token))
		if err != nil {
			if isNotFound(err) {
				return ErrInvalidToken
			}
			return err
		}
		now := s.now()
		switch inv.Status {
		case InvitationAccepted, InvitationRevoked:
			return ErrInvalidToken
		case InvitationExpired:
			return ErrExpired
		}
		if !now.Before(inv.ExpiresAt) {
			return ErrExpired
		}
		if err := tx.LockAddress(ctx, inv.Email); err != nil {
			return err
		}
		claimed, err := s.claimedByOther(ctx, tx, inv.Email, "", now)
		if err != nil {
			return err
		}
		if claimed {
			return ErrAlreadyExists
		}
		acc := &Account{
			ID:           newID(),
			Kind:         inv.Role,
			CompanyID:    inv.CompanyID,
			FirstName:    strings.TrimSpace(p.FirstName),
			LastName:     strings.TrimSpace(p.LastName),
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.InsertAccount(ctx, acc); err != nil {
			return err
		}
		// The link reached the mailbox, which is the ownership proof.
		rec := &EmailRecord{ID: newID(), AccountID: acc.ID, CreatedAt: now}
		rec.setPending(inv.Email, now)
		rec.promote(now)
		if err := tx.InsertEmail(ctx, rec); err != nil {
			return err
		}
		if inv.TeamID != "" {
			if err := tx.AddTeamMember(ctx, inv.TeamID, acc.ID); err != nil {
				return err
			}
		}
		inv.transition(InvitationAccepted, now)
		inv.AcceptedAccountID = acc.ID
		if err := tx.UpdateInvitation(ctx, inv); err != nil {
			return err
		}
		accountID = acc.ID
		return s.appendLog(ctx, tx, EmailChangeLog{
			AccountID: acc.ID, NewEmail: inv.Email,
			ChangeType: ChangeInvitationBound, Status: ChangeCompleted,
		})
	})
	if err != nil {
		return "", err
	}
	return accountID, nil
}

// Revoke cancels a pending invitation. actorID must manage the invitation's company.
func (s *Service) Revoke(ctx context.Context, actorID, invitationID string) (err error) {
	ctx, end := s.begin(ctx, "invitation.revoke", "actor_id", actorID, "invitation_id", invitationID)
	defer func() { end(&err) }()

	return s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		inv, err := tx.GetInvitation(ctx, invitationID)
		if err != nil {
			return err
		}
		actor, err := tx.GetAccount(ctx, actorID)
		if err != nil {
			if isNotFound(err) {
				return ErrForbidden
			}
			return err
		}
		if !actor.CanManageCompany(inv.CompanyID) {
			return ErrForbidden
		}
		if inv.Status != InvitationPending {
			return ErrInvitationNotPending
		}
		inv.transition(InvitationRevoked, s.now())
		return tx.UpdateInvitation(ctx, inv)
	})
}

// ListInvitations lists the actor's company invitations, optionally filtered by status.
func (s *Service) ListInvitations(ctx context.Context, actorID string, status InvitationStatus) (out []Invitation, err error) {
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		actor, err := tx.GetAccount(ctx, actorID)
		if err != nil {
			if isNotFound(err) {
				return ErrForbidden
			}
			return err
		}
		if !actor.CanManageCompany(actor.CompanyID) {
			return ErrForbidden
		}
		out, err = tx.ListInvitations(ctx, actor.CompanyID, status)
		return err
	})
	return out, err
}

// ExpireStaleInvitations marks overdue pending invitations as expired. It is bookkeeping
// for listings; Accept checks expiry itself.
func (s *Service) ExpireStaleInvitations(ctx context.Context, limit int) (n int, err error) {
	ctx, end := s.begin(ctx, "invitation.expire_stale")
	defer func() { end(&err) }()

	if limit <= 0 {
		limit = 500
	}
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		n, err = tx.ExpirePendingInvitations(ctx, s.now(), limit)
		return err
	})
	return n, err
}
