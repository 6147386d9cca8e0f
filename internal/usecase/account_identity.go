package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-accounts/internal/core/domain"
	"github.com/arklim/social-platform-accounts/internal/infra/logger"
	"github.com/arklim/social-platform-accounts/internal/repository"
)

// ChangeUsername renames the account. The new name must be free within the
// tenant; NameID stays stable so external references keep resolving.
func (s *AccountService) ChangeUsername(ctx context.Context, accountID uuid.UUID, newUsername string) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	newUsername = strings.TrimSpace(newUsername)
	if newUsername != "" && newUsername != account.Username {
		if err := s.ensureUsernameFree(ctx, account.Tenant, newUsername); err != nil {
			return err
		}
	}

	oldUsername := account.Username
	now := s.clock.UtcNow()
	if err := account.ChangeUsername(s.policy, newUsername, now); err != nil {
		return err
	}

	if err := s.accounts.Update(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.ErrUsernameAlreadyInUse
		}
		return fmt.Errorf("update account: %w", err)
	}

	s.logger.Info("username changed",
		zap.String("account_id", account.ID.String()),
		zap.String("old", logger.MaskEmail(oldUsername)),
		zap.String("new", logger.MaskEmail(account.Username)),
	)
	return s.events.Raise(ctx, domain.UsernameChangedEvent{
		EventID:     domain.NewEventID(),
		Account:     account,
		OldUsername: oldUsername,
		Occurred:    now,
	})
}

// RequestEmailChange issues a change-email key for the new address. The
// current address stays active until the key is redeemed.
func (s *AccountService) RequestEmailChange(ctx context.Context, accountID uuid.UUID, newEmail string) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	newEmail = strings.TrimSpace(newEmail)
	if newEmail != "" && newEmail != account.Email {
		if err := s.ensureEmailFree(ctx, account.Tenant, newEmail); err != nil {
			return err
		}
	}

	now := s.clock.UtcNow()
	if err := account.RequestEmailChange(newEmail, now); err != nil {
		return err
	}

	if err := s.update(ctx, account); err != nil {
		return err
	}

	s.metrics.RecordVerificationKey(string(domain.VerificationPurposeChangeEmail))
	return s.events.Raise(ctx, domain.EmailChangeRequestedEvent{
		EventID:         domain.NewEventID(),
		Account:         account,
		NewEmail:        account.PendingNewEmail,
		VerificationKey: account.VerificationKey,
		Occurred:        now,
	})
}

// VerifyEmailFromKey applies a pending email change. Wrong, stale, or
// repurposed keys soft-fail with false. In email-as-username mode the
// account is renamed too and both events fire.
func (s *AccountService) VerifyEmailFromKey(ctx context.Context, key string) (bool, error) {
	account, err := s.accounts.GetByVerificationKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup verification key: %w", err)
	}

	oldEmail := account.Email
	oldUsername := account.Username
	now := s.clock.UtcNow()
	if !account.VerifyEmailFromKey(s.policy, key, now) {
		return false, nil
	}

	if err := s.accounts.Update(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return false, domain.ErrEmailAlreadyInUse
		}
		return false, fmt.Errorf("update account: %w", err)
	}

	events := []any{domain.EmailChangedEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		OldEmail: oldEmail,
		Occurred: now,
	}}
	if account.Username != oldUsername {
		events = append(events, domain.UsernameChangedEvent{
			EventID:     domain.NewEventID(),
			Account:     account,
			OldUsername: oldUsername,
			Occurred:    now,
		})
	}
	return true, s.events.Raise(ctx, events...)
}

// RequestMobileChange issues a numeric confirmation code for a new phone
// number and raises it for SMS delivery.
func (s *AccountService) RequestMobileChange(ctx context.Context, accountID uuid.UUID, newPhone string) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	now := s.clock.UtcNow()
	code, err := account.RequestMobileChange(newPhone, now)
	if err != nil {
		return err
	}

	if err := s.update(ctx, account); err != nil {
		return err
	}

	s.logger.Info("mobile change requested",
		zap.String("account_id", account.ID.String()),
		zap.String("phone", logger.MaskPhone(account.PendingMobilePhone)),
	)
	return s.events.Raise(ctx, domain.MobileChangeRequestedEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		NewPhone: account.PendingMobilePhone,
		Code:     code,
		Occurred: now,
	})
}

// ConfirmMobileFromCode applies a pending mobile change. Wrong or stale
// codes soft-fail with false.
func (s *AccountService) ConfirmMobileFromCode(ctx context.Context, accountID uuid.UUID, code string) (bool, error) {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return false, err
	}

	now := s.clock.UtcNow()
	if !account.ConfirmMobileFromCode(code, s.policy.TwoFactorCodeLifetime, now) {
		return false, nil
	}

	if err := s.update(ctx, account); err != nil {
		return false, err
	}

	return true, s.events.Raise(ctx, domain.MobileChangedEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Occurred: now,
	})
}

// CloseAccount disables the account. Closing an already closed account is a
// no-op and raises nothing.
func (s *AccountService) CloseAccount(ctx context.Context, accountID uuid.UUID) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.IsAccountClosed {
		return nil
	}

	now := s.clock.UtcNow()
	account.CloseAccount(now)

	if err := s.update(ctx, account); err != nil {
		return err
	}

	if err := s.twoFactor.ForgetDevice(ctx, account.ID); err != nil {
		s.logger.Warn("forget device failed", zap.String("account_id", account.ID.String()), zap.Error(err))
	}

	s.logger.Info("account closed", zap.String("account_id", account.ID.String()))
	return s.events.Raise(ctx, domain.AccountClosedEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Occurred: now,
	})
}

// ReopenAccount reverses a close.
func (s *AccountService) ReopenAccount(ctx context.Context, accountID uuid.UUID) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	now := s.clock.UtcNow()
	if err := account.ReopenAccount(now); err != nil {
		return err
	}

	if err := s.update(ctx, account); err != nil {
		return err
	}

	s.logger.Info("account reopened", zap.String("account_id", account.ID.String()))
	return s.events.Raise(ctx, domain.AccountReopenedEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Occurred: now,
	})
}

// DeleteAccount removes the account outright when hard deletion is allowed
// or the account never completed verification; otherwise it closes it.
func (s *AccountService) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	if !s.policy.AllowAccountDeletion && account.IsAccountVerified {
		return s.CloseAccount(ctx, accountID)
	}

	if err := s.accounts.Remove(ctx, account.ID); err != nil {
		return fmt.Errorf("remove account: %w", err)
	}

	if err := s.twoFactor.ForgetDevice(ctx, account.ID); err != nil {
		s.logger.Warn("forget device failed", zap.String("account_id", account.ID.String()), zap.Error(err))
	}

	s.metrics.RecordAccountRemoved()
	s.logger.Info("account removed", zap.String("account_id", account.ID.String()))
	return s.events.Raise(ctx, domain.AccountRemovedEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Occurred: s.clock.UtcNow(),
	})
}
