package core

import (
	"context"
	"time"
)

func primaryOf(recs []EmailRecord) *EmailRecord {
	for i := range recs {
		if recs[i].Status == EmailVerifiedPrimary {
			return &recs[i]
		}
	}
	return nil
}

// workingOf returns the account's single unverified or pending record, if any.
func workingOf(recs []EmailRecord) *EmailRecord {
	var w *EmailRecord
	for i := range recs {
		if !recs[i].Working() {
			continue
		}
		if w == nil || recs[i].UpdatedAt.After(w.UpdatedAt) {
			w = &recs[i]
		}
	}
	return w
}

// claimedByOther reports whether address is held by an account other than accountID.
// Expired grace periods are ignored here rather than swept.
func (s *Service) claimedByOther(ctx context.Context, tx Tx, address, accountID string, now time.Time) (bool, error) {
	recs, err := tx.EmailsByAddress(ctx, address)
	if err != nil {
		return false, err
	}
	for _, r := range recs {
		if r.AccountID != accountID && r.Claims(now) {
			return true, nil
		}
	}
	return false, nil
}

// IsAddressClaimed reports whether any account holds address as primary or inside its grace period.
func (s *Service) IsAddressClaimed(ctx context.Context, address string) (claimed bool, err error) {
	address, err = NormalizeEmail(address)
	if err != nil {
		return false, err
	}
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := s.claimedByOther(ctx, tx, address, "", s.now())
		claimed = c
		return err
	})
	return claimed, err
}

// upsertWorking points the account's working record at address with the given status.
func (s *Service) upsertWorking(ctx context.Context, tx Tx, accountID string, recs []EmailRecord, address string, status EmailStatus, now time.Time) (*EmailRecord, error) {
	w := workingOf(recs)
	if w == nil {
		rec := &EmailRecord{ID: newID(), AccountID: accountID, CreatedAt: now}
		if status == EmailPending {
			rec.setPending(address, now)
		} else {
			rec.setUnverified(address, now)
		}
		return rec, tx.InsertEmail(ctx, rec)
	}
	if status == EmailPending {
		w.setPending(address, now)
	} else {
		w.setUnverified(address, now)
	}
	return w, tx.UpdateEmail(ctx, w)
}

// RequestVerification moves the account's working address to pending and sends a code.
// A channel that is already locked can only move through RequestSecureChange.
func (s *Service) RequestVerification(ctx context.Context, accountID, address string) (h ChallengeHandle, err error) {
	ctx, end := s.begin(ctx, "email.request_verification", "account_id", accountID)
	defer func() { end(&err) }()

	address, err = NormalizeEmail(address)
	if err != nil {
		return ChallengeHandle{}, err
	}
	var code string
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		recs, err := tx.EmailsByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if primaryOf(recs) != nil {
			return ErrAlreadyVerified
		}
		now := s.now()
		if err := tx.LockAddress(ctx, address); err != nil {
			return err
		}
		claimed, err := s.claimedByOther(ctx, tx, address, accountID, now)
		if err != nil {
			return err
		}
		if claimed {
			return ErrAddressClaimed
		}
		if _, err := s.upsertWorking(ctx, tx, accountID, recs, address, EmailPending, now); err != nil {
			return err
		}
		ch, c, err := s.issueTx(ctx, tx, address, PurposeEmailVerification, ErrRateLimited)
		if err != nil {
			return err
		}
		h, code = ch.Handle(), c
		return nil
	})
	if err != nil {
		return ChallengeHandle{}, err
	}
	s.sendCode(ctx, address, PurposeEmailVerification, code)
	return h, nil
}

// ConfirmVerification consumes the code for the account's pending address and makes it
// the primary. A previous primary is detached in the same unit.
func (s *Service) ConfirmVerification(ctx context.Context, accountID, address, code string) error {
	return s.confirm(ctx, accountID, address, "", code)
}

// ConfirmCode is ConfirmVerification for callers that name the purpose. It fails with
// ErrNoPendingEmail when purpose does not match the account's pending change.
func (s *Service) ConfirmCode(ctx context.Context, accountID, address string, purpose Purpose, code string) error {
	if purpose != PurposeEmailVerification && purpose != PurposeEmailChange {
		return ErrInvalidPurpose
	}
	return s.confirm(ctx, accountID, address, purpose, code)
}

func (s *Service) confirm(ctx context.Context, accountID, address string, want Purpose, code string) (err error) {
	ctx, end := s.begin(ctx, "email.confirm_verification", "account_id", accountID)
	defer func() { end(&err) }()

	address, err = NormalizeEmail(address)
	if err != nil {
		return err
	}
	return s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		recs, err := tx.EmailsByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		target := workingOf(recs)
		if target == nil || target.Status != EmailPending || target.Address != address {
			return ErrNoPendingEmail
		}
		old := primaryOf(recs)
		purpose, changeType := PurposeEmailVerification, ChangeVerification
		var oldAddress string
		if old != nil {
			purpose, changeType, oldAddress = PurposeEmailChange, ChangeSecure, old.Address
		}
		if want != "" && want != purpose {
			return ErrNoPendingEmail
		}
		// Address before challenge pair, the same order Issue paths use.
		if err := tx.LockAddress(ctx, address); err != nil {
			return err
		}

		if _, verr := s.validateTx(ctx, tx, address, purpose, code); verr != nil {
			if !isRejection(verr) {
				return verr
			}
			if err := s.appendLog(ctx, tx, EmailChangeLog{
				AccountID: accountID, OldEmail: oldAddress, NewEmail: address,
				ChangeType: changeType, Status: ChangeRejected, Reason: Code(verr),
			}); err != nil {
				return err
			}
			return verr
		}

		now := s.now()
		claimed, err := s.claimedByOther(ctx, tx, address, accountID, now)
		if err != nil {
			return err
		}
		if claimed {
			// Someone else verified the address after our code was issued; nothing is applied.
			return ErrAddressClaimed
		}
		if old != nil {
			old.detach(now, s.cfg.GracePeriod)
			if err := tx.UpdateEmail(ctx, old); err != nil {
				return err
			}
		}
		target.promote(now)
		if err := tx.UpdateEmail(ctx, target); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, EmailChangeLog{
			AccountID: accountID, OldEmail: oldAddress, NewEmail: address,
			ChangeType: changeType, Status: ChangeCompleted,
		})
	})
}

// EditUnverified rewrites the working address without proof. Callers gating critical
// actions must check IsVerified themselves.
func (s *Service) EditUnverified(ctx context.Context, accountID, newAddress string) (err error) {
	ctx, end := s.begin(ctx, "email.edit_unverified", "account_id", accountID)
	defer func() { end(&err) }()

	newAddress, err = NormalizeEmail(newAddress)
	if err != nil {
		return err
	}
	return s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		recs, err := tx.EmailsByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if primaryOf(recs) != nil {
			return ErrAlreadyVerified
		}
		var oldAddress string
		if w := workingOf(recs); w != nil {
			oldAddress = w.Address
		}
		if _, err := s.upsertWorking(ctx, tx, accountID, recs, newAddress, EmailUnverified, s.now()); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, EmailChangeLog{
			AccountID: accountID, OldEmail: oldAddress, NewEmail: newAddress,
			ChangeType: ChangeEditUnverified, Status: ChangeCompleted,
		})
	})
}

// RequestSecureChange authorizes the actor through the Gate and sends a code to newAddress.
// The current primary stays verified until ConfirmVerification succeeds.
func (s *Service) RequestSecureChange(ctx context.Context, accountID, newAddress, currentPassword, secondFactorCode string) (h ChallengeHandle, err error) {
	ctx, end := s.begin(ctx, "email.request_secure_change", "account_id", accountID)
	defer func() { end(&err) }()

	newAddress, err = NormalizeEmail(newAddress)
	if err != nil {
		return ChallengeHandle{}, err
	}
	var code string
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		acc, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		recs, err := tx.EmailsByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		primary := primaryOf(recs)
		if primary == nil {
			return ErrNoVerifiedEmail
		}
		usedSecondFactor, gerr := s.gate().Authorize(acc, currentPassword, secondFactorCode)
		if gerr != nil {
			if err := s.appendLog(ctx, tx, EmailChangeLog{
				AccountID: accountID, OldEmail: primary.Address, NewEmail: newAddress,
				ChangeType: ChangeSecure, Status: ChangeRejected, Reason: Code(gerr),
				SecondFactorUsed: acc.SecondFactorEnabled && secondFactorCode != "",
			}); err != nil {
				return err
			}
			return reject(gerr)
		}
		if newAddress == primary.Address {
			return ErrSameAddress
		}
		now := s.now()
		if err := tx.LockAddress(ctx, newAddress); err != nil {
			return err
		}
		claimed, err := s.claimedByOther(ctx, tx, newAddress, accountID, now)
		if err != nil {
			return err
		}
		if claimed {
			return ErrAddressClaimed
		}
		if _, err := s.upsertWorking(ctx, tx, accountID, recs, newAddress, EmailPending, now); err != nil {
			return err
		}
		ch, c, err := s.issueTx(ctx, tx, newAddress, PurposeEmailChange, ErrRateLimited)
		if err != nil {
			return err
		}
		h, code = ch.Handle(), c
		return s.appendLog(ctx, tx, EmailChangeLog{
			AccountID: accountID, OldEmail: primary.Address, NewEmail: newAddress,
			ChangeType: ChangeSecure, Status: ChangeRequested, SecondFactorUsed: usedSecondFactor,
		})
	})
	if err != nil {
		return ChallengeHandle{}, err
	}
	s.sendCode(ctx, newAddress, PurposeEmailChange, code)
	return h, nil
}

// ResendCode resends the code for the account's pending address, with ErrTooSoon inside the cooldown.
func (s *Service) ResendCode(ctx context.Context, accountID string) (ChallengeHandle, error) {
	return s.resend(ctx, "email.resend_code", accountID, "", "", ErrTooSoon)
}

// SendCode issues a code for one of the account's own addresses. Email verification
// goes through RequestVerification; email change only re-sends to the address already
// pending through RequestSecureChange, so no new address can be added without the Gate.
func (s *Service) SendCode(ctx context.Context, accountID, address string, purpose Purpose) (ChallengeHandle, error) {
	switch purpose {
	case PurposeEmailVerification:
		return s.RequestVerification(ctx, accountID, address)
	case PurposeEmailChange:
		address, err := NormalizeEmail(address)
		if err != nil {
			return ChallengeHandle{}, err
		}
		return s.resend(ctx, "email.send_code", accountID, address, PurposeEmailChange, ErrRateLimited)
	}
	return ChallengeHandle{}, ErrInvalidPurpose
}

// resend re-issues the code for the account's pending record. A non-empty address or
// purpose must match that record.
func (s *Service) resend(ctx context.Context, op, accountID, address string, want Purpose, cooldownErr error) (h ChallengeHandle, err error) {
	ctx, end := s.begin(ctx, op, "account_id", accountID)
	defer func() { end(&err) }()

	var (
		code    string
		purpose Purpose
	)
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		recs, err := tx.EmailsByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		w := workingOf(recs)
		if w == nil || w.Status != EmailPending {
			return ErrNoPendingEmail
		}
		purpose = PurposeEmailVerification
		if primaryOf(recs) != nil {
			purpose = PurposeEmailChange
		}
		if (address != "" && address != w.Address) || (want != "" && want != purpose) {
			return ErrNoPendingEmail
		}
		address = w.Address
		if err := tx.LockAddress(ctx, address); err != nil {
			return err
		}
		ch, c, err := s.issueTx(ctx, tx, address, purpose, cooldownErr)
		if err != nil {
			return err
		}
		h, code = ch.Handle(), c
		return nil
	})
	if err != nil {
		return ChallengeHandle{}, err
	}
	s.sendCode(ctx, address, purpose, code)
	return h, nil
}

// ListEmails returns every record bound to the account, history included.
func (s *Service) ListEmails(ctx context.Context, accountID string) (recs []EmailRecord, err error) {
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		recs, err = tx.EmailsByAccount(ctx, accountID)
		return err
	})
	return recs, err
}

func (s *Service) ListChangeLog(ctx context.Context, accountID string) (entries []EmailChangeLog, err error) {
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		entries, err = tx.ChangeLogByAccount(ctx, accountID)
		return err
	})
	return entries, err
}
