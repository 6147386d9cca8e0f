package usecase

import (
	"context"
	"errors"
	"fmt"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-accounts/internal/core/domain"
	"github.com/arklim/social-platform-accounts/internal/infra/logger"
	"github.com/arklim/social-platform-accounts/internal/repository"
)

// ChangePassword replaces the credential after verifying the old password.
// Failed old-password checks count against the lockout like any other failed
// login, and a successful change revokes every remembered device.
func (s *AccountService) ChangePassword(ctx context.Context, accountID uuid.UUID, oldPassword, newPassword string) error {
	if err := s.validator.Validate(newPassword); err != nil {
		return err
	}

	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	now := s.clock.UtcNow()
	if err := account.ChangePassword(s.hasher, oldPassword, newPassword, s.policy.AccountLockoutFailedLoginAttempts, s.policy.AccountLockoutDuration, now); err != nil {
		if errors.Is(err, domain.ErrInvalidOldPassword) {
			// The failed attempt was recorded on the aggregate; keep it.
			if updateErr := s.update(ctx, account); updateErr != nil {
				s.logger.Warn("persist failed password attempt", zap.String("account_id", account.ID.String()), zap.Error(updateErr))
			}
		}
		return err
	}

	if err := s.update(ctx, account); err != nil {
		return err
	}

	if err := s.twoFactor.ForgetDevice(ctx, account.ID); err != nil {
		s.logger.Warn("forget device failed", zap.String("account_id", account.ID.String()), zap.Error(err))
	}

	s.logger.Info("password changed", zap.String("account_id", account.ID.String()))
	return s.events.Raise(ctx, domain.PasswordChangedEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Occurred: now,
	})
}

// RequestPasswordReset issues a reset key for the account owning the email.
// Unverified accounts get their registration key re-sent instead, since a
// reset makes no sense before the address is proven.
func (s *AccountService) RequestPasswordReset(ctx context.Context, tenant, email string) error {
	tenant = s.policy.Tenant(tenant)

	account, err := s.accounts.GetByEmail(ctx, tenant, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrAccountNotFound
		}
		return fmt.Errorf("lookup email: %w", err)
	}

	now := s.clock.UtcNow()
	if err := account.RequestPasswordReset(s.policy.VerificationKeyLifetime, now); err != nil {
		return err
	}

	if err := s.update(ctx, account); err != nil {
		return err
	}

	s.logger.Info("password reset requested",
		zap.String("account_id", account.ID.String()),
		zap.String("email", logger.MaskEmail(email)),
	)

	if !account.IsAccountVerified {
		// Re-send the pending registration key; the account must verify
		// before it can reset.
		s.metrics.RecordVerificationKey(string(domain.VerificationPurposeRegistration))
		return s.events.Raise(ctx, domain.AccountCreatedEvent{
			EventID:         domain.NewEventID(),
			Account:         account,
			VerificationKey: account.VerificationKey,
			Occurred:        now,
		})
	}

	s.metrics.RecordVerificationKey(string(domain.VerificationPurposePasswordReset))
	return s.events.Raise(ctx, domain.PasswordResetRequestedEvent{
		EventID:         domain.NewEventID(),
		Account:         account,
		VerificationKey: account.VerificationKey,
		Occurred:        now,
	})
}

// ChangePasswordFromResetKey redeems a reset key. Unknown, stale, or
// repurposed keys soft-fail with false; a weak replacement password is a
// validation error.
func (s *AccountService) ChangePasswordFromResetKey(ctx context.Context, key, newPassword string) (bool, error) {
	if err := s.validator.Validate(newPassword); err != nil {
		return false, err
	}

	account, err := s.accounts.GetByVerificationKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup verification key: %w", err)
	}

	now := s.clock.UtcNow()
	if !account.ChangePasswordFromResetKey(s.hasher, key, newPassword, s.policy.VerificationKeyLifetime, now) {
		return false, nil
	}

	if err := s.update(ctx, account); err != nil {
		return false, err
	}

	if err := s.twoFactor.ForgetDevice(ctx, account.ID); err != nil {
		s.logger.Warn("forget device failed", zap.String("account_id", account.ID.String()), zap.Error(err))
	}

	s.logger.Info("password reset completed", zap.String("account_id", account.ID.String()))
	return true, s.events.Raise(ctx, domain.PasswordChangedEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Occurred: now,
	})
}

// AddPasswordResetSecret registers a question/answer pair for the account.
// The answer is stored hashed.
func (s *AccountService) AddPasswordResetSecret(ctx context.Context, accountID uuid.UUID, question, answer string) (uuid.UUID, error) {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return uuid.Nil, err
	}

	hashedAnswer, err := s.hasher.Hash(answer)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash answer: %w", err)
	}

	now := s.clock.UtcNow()
	secretID, err := account.AddPasswordResetSecret(question, hashedAnswer, now)
	if err != nil {
		return uuid.Nil, err
	}

	if err := s.update(ctx, account); err != nil {
		return uuid.Nil, err
	}
	return secretID, nil
}

// RemovePasswordResetSecret drops a question/answer pair. Removing an
// unknown secret is a no-op.
func (s *AccountService) RemovePasswordResetSecret(ctx context.Context, accountID, secretID uuid.UUID) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	account.RemovePasswordResetSecret(secretID, s.clock.UtcNow())
	return s.update(ctx, account)
}
