package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// resetAccount finds the account of kind whose primary address is email.
// Unverified and detached addresses never authorize a reset.
func (s *Service) resetAccount(ctx context.Context, tx Tx, kind AccountKind, email string) (*Account, error) {
	recs, err := tx.EmailsByAddress(ctx, email)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.Status != EmailVerifiedPrimary {
			continue
		}
		acc, err := tx.GetAccount(ctx, r.AccountID)
		if err != nil {
			return nil, err
		}
		if acc.Kind == kind {
			return acc, nil
		}
	}
	return nil, ErrNotFound
}

// RequestReset sends a reset code when email belongs to an account of kind. It reports
// success whether or not the account exists; only store failures are returned.
func (s *Service) RequestReset(ctx context.Context, kind AccountKind, email string) (err error) {
	ctx, end := s.begin(ctx, "password_reset.request", "kind", kind)
	defer func() { end(&err) }()

	email, nerr := NormalizeEmail(email)
	kind, kerr := ParseAccountKind(string(kind))
	if nerr != nil || kerr != nil {
		return nil
	}
	var code string
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := s.resetAccount(ctx, tx, kind, email); err != nil {
			return err
		}
		_, c, err := s.issueTx(ctx, tx, email, PurposePasswordReset, ErrRateLimited)
		code = c
		return err
	})
	switch {
	case err == nil:
		s.sendCode(ctx, email, PurposePasswordReset, code)
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRateLimited):
		s.log.InfoContext(ctx, "verifykit: password reset not issued", "kind", kind, "reason", Code(err))
		return nil
	}
	return err
}

// VerifyReset consumes the reset code and returns the consumed challenge id. The
// password is not changed yet; CompletePasswordReset must follow within the reset window.
func (s *Service) VerifyReset(ctx context.Context, kind AccountKind, email, code string) (challengeID string, err error) {
	ctx, end := s.begin(ctx, "password_reset.verify", "kind", kind)
	defer func() { end(&err) }()

	email, err = NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	if kind, err = ParseAccountKind(string(kind)); err != nil {
		return "", err
	}
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := s.resetAccount(ctx, tx, kind, email); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrChallengeNotFound
			}
			return err
		}
		ch, err := s.validateTx(ctx, tx, email, PurposePasswordReset, code)
		if err != nil {
			return err
		}
		challengeID = ch.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	if err := s.ephemSetString(ctx, resetAuthorizedKey(challengeID), email, s.cfg.ResetWindow); err != nil {
		return "", fmt.Errorf("store reset marker: %w", err)
	}
	return challengeID, nil
}

// CompletePasswordReset sets newPassword after a successful VerifyReset for the same
// (email, code). The authorization is single use; all sessions are revoked afterwards.
// secondFactorCode is required when the account has a second factor enabled.
func (s *Service) CompletePasswordReset(ctx context.Context, kind AccountKind, email, code, newPassword, secondFactorCode string) (err error) {
	ctx, end := s.begin(ctx, "password_reset.complete", "kind", kind)
	defer func() { end(&err) }()

	email, err = NormalizeEmail(email)
	if err != nil {
		return err
	}
	if kind, err = ParseAccountKind(string(kind)); err != nil {
		return err
	}
	hash, err := hashNewPassword(newPassword)
	if err != nil {
		return err
	}
	var (
		accountID string
		markerKey string
		restoreIn time.Duration
	)
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		acc, err := s.resetAccount(ctx, tx, kind, email)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrResetNotAuthorized
			}
			return err
		}
		if err := tx.LockChallengePair(ctx, email, PurposePasswordReset); err != nil {
			return err
		}
		ch, err := tx.LatestChallenge(ctx, email, PurposePasswordReset)
		if err != nil {
			return err
		}
		if ch == nil || ch.ConsumedAt == nil {
			return ErrResetNotAuthorized
		}
		now := s.now()
		key := resetAuthorizedKey(ch.ID)
		if !hashEqual(hashCode(s.cfg.CodeSecret, email, PurposePasswordReset, code), ch.CodeHash) {
			// A wrong code burns the authorization; the flow restarts from RequestReset.
			ch.AttemptCount++
			if err := tx.UpdateChallenge(ctx, ch); err != nil {
				return err
			}
			if _, _, err := s.ephemTakeString(ctx, key); err != nil {
				return err
			}
			return reject(ErrInvalidCode)
		}
		window := s.cfg.ResetWindow - now.Sub(*ch.ConsumedAt)
		if window <= 0 {
			return ErrExpired
		}
		if err := s.gate().CheckSecondFactor(acc, secondFactorCode); err != nil {
			return err
		}
		acc.PasswordHash = hash
		acc.UpdatedAt = now
		accountID = acc.ID
		if err := tx.UpdateAccount(ctx, acc); err != nil {
			return err
		}
		// The marker is only taken once the write has succeeded.
		marked, ok, err := s.ephemTakeString(ctx, key)
		if err != nil {
			return err
		}
		if !ok || marked != email {
			return ErrAlreadyConsumed
		}
		markerKey, restoreIn = key, window
		return nil
	})
	if err != nil {
		if markerKey != "" {
			// The marker was taken but the unit did not commit.
			if rerr := s.ephemSetString(ctx, markerKey, email, restoreIn); rerr != nil {
				s.log.ErrorContext(ctx, "verifykit: restore reset marker failed", "err", rerr)
			}
		}
		return err
	}
	if s.sessions != nil {
		if err := s.sessions.RevokeAllSessions(ctx, accountID); err != nil {
			s.log.ErrorContext(ctx, "verifykit: revoke sessions after reset failed", "account_id", accountID, "err", err)
		}
	}
	return nil
}
