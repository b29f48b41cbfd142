package core

import (
	"context"
	"math"
)

// Status is the pull-based view of (target, purpose). Polling cadence is the caller's concern.
func (s *Service) Status(ctx context.Context, target string, purpose Purpose) (st VerificationStatus, err error) {
	target, err = NormalizeEmail(target)
	if err != nil {
		return st, err
	}
	if purpose == "" {
		purpose = PurposeEmailVerification
	}
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		recs, err := tx.EmailsByAddress(ctx, target)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if r.Status == EmailVerifiedPrimary {
				st.IsVerified = true
				break
			}
		}
		ch, err := tx.LatestChallenge(ctx, target, purpose)
		if err != nil {
			return err
		}
		now := s.now()
		st.CanResend = true
		if ch != nil && ch.State(now) == ChallengeActive {
			st.HasPendingChallenge = true
			if now.Before(ch.ResendAvailableAt) {
				st.CanResend = false
				st.RetryAfterSeconds = int(math.Ceil(ch.ResendAvailableAt.Sub(now).Seconds()))
			}
		}
		return nil
	})
	return st, err
}
