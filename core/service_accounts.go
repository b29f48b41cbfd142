package core

import (
	"context"
	"errors"
	"strings"

	pwhash "github.com/PaulFidika/verifykit/password"
	"github.com/pquerna/otp/totp"
)

// RegisterParams describes a self-service signup.
type RegisterParams struct {
	Kind      AccountKind
	CompanyID string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// RegisterAccount creates an account with an unverified email. A company account is its own company.
func (s *Service) RegisterAccount(ctx context.Context, p RegisterParams) (acc *Account, err error) {
	ctx, end := s.begin(ctx, "account.register", "kind", p.Kind)
	defer func() { end(&err) }()

	kind, err := ParseAccountKind(string(p.Kind))
	if err != nil {
		return nil, err
	}
	email, err := NormalizeEmail(p.Email)
	if err != nil {
		return nil, err
	}
	hash, err := hashNewPassword(p.Password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	acc = &Account{
		ID:           newID(),
		Kind:         kind,
		CompanyID:    strings.TrimSpace(p.CompanyID),
		FirstName:    strings.TrimSpace(p.FirstName),
		LastName:     strings.TrimSpace(p.LastName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if kind == KindCompany {
		acc.CompanyID = acc.ID
	} else if acc.CompanyID == "" && kind != KindClient {
		return nil, ErrInvalidRequest
	}
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockAddress(ctx, email); err != nil {
			return err
		}
		claimed, err := s.claimedByOther(ctx, tx, email, acc.ID, now)
		if err != nil {
			return err
		}
		if claimed {
			return ErrAlreadyExists
		}
		if err := tx.InsertAccount(ctx, acc); err != nil {
			return err
		}
		rec := &EmailRecord{ID: newID(), AccountID: acc.ID, CreatedAt: now}
		rec.setUnverified(email, now)
		if err := tx.InsertEmail(ctx, rec); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func hashNewPassword(pw string) (string, error) {
	if err := pwhash.Validate(pw); err != nil {
		return "", errors.Join(ErrWeakPassword, err)
	}
	return pwhash.Hash(pw)
}

func (s *Service) GetAccount(ctx context.Context, accountID string) (acc *Account, err error) {
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		acc, err = tx.GetAccount(ctx, accountID)
		return err
	})
	return acc, err
}

// IsVerified reports whether the account currently has a verified primary email.
func (s *Service) IsVerified(ctx context.Context, accountID string) (verified bool, err error) {
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		recs, err := tx.EmailsByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		verified = primaryOf(recs) != nil
		return nil
	})
	return verified, err
}

// RequireVerified is the gate collaborators call before critical actions.
func (s *Service) RequireVerified(ctx context.Context, accountID string) error {
	ok, err := s.IsVerified(ctx, accountID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotVerified
	}
	return nil
}

// Enrollment is returned once when a second factor is set up.
type Enrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

// EnrollSecondFactor stores a new TOTP secret that stays inactive until ActivateSecondFactor.
func (s *Service) EnrollSecondFactor(ctx context.Context, accountID, issuer string) (en Enrollment, err error) {
	ctx, end := s.begin(ctx, "second_factor.enroll", "account_id", accountID)
	defer func() { end(&err) }()

	if issuer == "" {
		issuer = "verifykit"
	}
	err = s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		acc, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if acc.SecondFactorEnabled {
			return ErrSecondFactorActivated
		}
		label := acc.ID
		if recs, err := tx.EmailsByAccount(ctx, accountID); err == nil {
			if p := primaryOf(recs); p != nil {
				label = p.Address
			}
		}
		key, err := totp.Generate(totp.GenerateOpts{Issuer: issuer, AccountName: label})
		if err != nil {
			return err
		}
		acc.SecondFactorSecret = key.Secret()
		acc.UpdatedAt = s.now()
		en = Enrollment{Secret: key.Secret(), URL: key.URL()}
		return tx.UpdateAccount(ctx, acc)
	})
	return en, err
}

// ActivateSecondFactor enables the enrolled secret once a code generated from it verifies.
func (s *Service) ActivateSecondFactor(ctx context.Context, accountID, code string) (err error) {
	ctx, end := s.begin(ctx, "second_factor.activate", "account_id", accountID)
	defer func() { end(&err) }()

	return s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		acc, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if acc.SecondFactorEnabled {
			return ErrSecondFactorActivated
		}
		if acc.SecondFactorSecret == "" {
			return ErrSecondFactorNotSet
		}
		if !s.gate().totpValid(acc.SecondFactorSecret, strings.TrimSpace(code)) {
			return ErrSecondFactorInvalid
		}
		acc.SecondFactorEnabled = true
		acc.UpdatedAt = s.now()
		return tx.UpdateAccount(ctx, acc)
	})
}

// DisableSecondFactor requires the full Gate, second factor included.
func (s *Service) DisableSecondFactor(ctx context.Context, accountID, currentPassword, code string) (err error) {
	ctx, end := s.begin(ctx, "second_factor.disable", "account_id", accountID)
	defer func() { end(&err) }()

	return s.withinTx(ctx, func(ctx context.Context, tx Tx) error {
		acc, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !acc.SecondFactorEnabled {
			return ErrSecondFactorNotSet
		}
		if _, err := s.gate().Authorize(acc, currentPassword, code); err != nil {
			return err
		}
		acc.SecondFactorEnabled = false
		acc.SecondFactorSecret = ""
		acc.UpdatedAt = s.now()
		return tx.UpdateAccount(ctx, acc)
	})
}
