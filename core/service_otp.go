package core

import (
	"context"
	"fmt"
)

// Issue creates a new challenge for (target, purpose) and sends its code.
// It fails with a CooldownError wrapping ErrRateLimited while the previous challenge
// is still active and inside its resend cooldown.
func (s *Service) Issue(ctx context.Context, target string, purpose Purpose) (ChallengeHandle, error) {
	return s.issue(ctx, "otp.issue", target, purpose, ErrRateLimited)
}

// Resend is Issue with ErrTooSoon as the cooldown failure.
func (s *Service) Resend(ctx context.Context, target string, purpose Purpose) (ChallengeHandle, error) {
	return s.issue(ctx, "otp.resend", target, purpose, ErrTooSoon)
}

func (s *Service) issue(ctx context.Context, op, target string, purpose Purpose, cooldownErr error) (h ChallengeHandle, err error) {
	ctx, end := s.begin(ctx, op, "purpose", purpose)
	defer func() { end(&err) }()

	target, err = NormalizeEmail(target)
	if err != nil {
		return ChallengeHandle{}, err
	}
	if _, err := ParsePurpose(string(purpose)); err != nil || purpose == "" {
		return ChallengeHandle{}, ErrInvalidPurpose
	}
	var code string
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		ch, c, err := s.issueTx(ctx, tx, target, purpose, cooldownErr)
		if err != nil {
			return err
		}
		h, code = ch.Handle(), c
		return nil
	})
	if err != nil {
		return ChallengeHandle{}, err
	}
	s.sendCode(ctx, target, purpose, code)
	return h, nil
}

// issueTx supersedes any open challenge for the pair and inserts a fresh one.
// The plaintext code is returned so the caller can send it after commit.
func (s *Service) issueTx(ctx context.Context, tx Tx, target string, purpose Purpose, cooldownErr error) (*OTPChallenge, string, error) {
	if err := tx.LockChallengePair(ctx, target, purpose); err != nil {
		return nil, "", err
	}
	latest, err := tx.LatestChallenge(ctx, target, purpose)
	if err != nil {
		return nil, "", err
	}
	now := s.now()
	if latest != nil {
		if latest.State(now) == ChallengeActive && now.Before(latest.ResendAvailableAt) {
			return nil, "", &CooldownError{Err: cooldownErr, RetryAfter: latest.ResendAvailableAt.Sub(now)}
		}
		if latest.Open() {
			latest.invalidate(now)
			if err := tx.UpdateChallenge(ctx, latest); err != nil {
				return nil, "", err
			}
		}
	}
	code, err := generateCode()
	if err != nil {
		return nil, "", fmt.Errorf("generate code: %w", err)
	}
	ch := &OTPChallenge{
		ID:                newID(),
		Target:            target,
		Purpose:           purpose,
		CodeHash:          hashCode(s.cfg.CodeSecret, target, purpose, code),
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.cfg.OTPTTL),
		MaxAttempts:       s.cfg.MaxAttempts,
		ResendAvailableAt: now.Add(s.cfg.ResendCooldown),
	}
	if err := tx.InsertChallenge(ctx, ch); err != nil {
		return nil, "", err
	}
	return ch, code, nil
}

// Validate checks code against the latest challenge for (target, purpose).
// Every attempt that reaches the comparison is counted, including failures.
func (s *Service) Validate(ctx context.Context, target string, purpose Purpose, code string) (h ChallengeHandle, err error) {
	ctx, end := s.begin(ctx, "otp.validate", "purpose", purpose)
	defer func() { end(&err) }()

	target, err = NormalizeEmail(target)
	if err != nil {
		return ChallengeHandle{}, err
	}
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		ch, err := s.validateTx(ctx, tx, target, purpose, code)
		if err != nil {
			return err
		}
		h = ch.Handle()
		return nil
	})
	if err != nil {
		return ChallengeHandle{}, err
	}
	return h, nil
}

// validateTx reports business failures as rejections so the attempt count and any
// invalidation are committed with them.
func (s *Service) validateTx(ctx context.Context, tx Tx, target string, purpose Purpose, code string) (*OTPChallenge, error) {
	if err := tx.LockChallengePair(ctx, target, purpose); err != nil {
		return nil, err
	}
	ch, err := tx.LatestChallenge(ctx, target, purpose)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, reject(ErrChallengeNotFound)
	}
	now := s.now()
	switch ch.State(now) {
	case ChallengeConsumed:
		return nil, reject(ErrAlreadyConsumed)
	case ChallengeInvalidated:
		return nil, reject(ErrAttemptsExceeded)
	case ChallengeExpired:
		return nil, reject(ErrExpired)
	case ChallengeExhausted:
		ch.invalidate(now)
		if err := tx.UpdateChallenge(ctx, ch); err != nil {
			return nil, err
		}
		return nil, reject(ErrAttemptsExceeded)
	}

	ch.AttemptCount++
	match := hashEqual(hashCode(s.cfg.CodeSecret, target, purpose, code), ch.CodeHash)
	if match {
		ch.consume(now)
	}
	if err := tx.UpdateChallenge(ctx, ch); err != nil {
		return nil, err
	}
	if !match {
		return nil, reject(ErrInvalidCode)
	}
	return ch, nil
}

func (s *Service) sendCode(ctx context.Context, target string, purpose Purpose, code string) {
	if code == "" {
		return
	}
	subject, body := otpMessage(purpose, code, s.cfg.OTPTTL.String())
	s.notify(ctx, target, Message{Kind: MessageOTP, Purpose: purpose, Subject: subject, Body: body, Code: code})
}

func otpMessage(purpose Purpose, code, ttl string) (string, string) {
	var subject string
	switch purpose {
	case PurposePasswordReset:
		subject = "Your password reset code"
	case PurposeEmailChange:
		subject = "Confirm your new email address"
	default:
		subject = "Verify your email address"
	}
	return subject, fmt.Sprintf("Your code is %s. It expires in %s.", code, ttl)
}
