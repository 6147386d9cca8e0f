package usecase

import (
	"context"
	"errors"
	"fmt"

	uuid "github.com/google/uuid"

	"github.com/arklim/social-platform-accounts/internal/core/domain"
	"github.com/arklim/social-platform-accounts/internal/repository"
)

// AddClaim sets the claim of the given type, replacing existing claims of
// that type.
func (s *AccountService) AddClaim(ctx context.Context, accountID uuid.UUID, claimType, value string) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	now := s.clock.UtcNow()
	if err := account.AddClaim(claimType, value, now); err != nil {
		return err
	}

	if err := s.update(ctx, account); err != nil {
		return err
	}

	return s.events.Raise(ctx, domain.ClaimAddedEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Claim:    domain.Claim{Type: claimType, Value: value},
		Occurred: now,
	})
}

// AddClaimValue appends a claim, keeping other values of the same type.
func (s *AccountService) AddClaimValue(ctx context.Context, accountID uuid.UUID, claimType, value string) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	now := s.clock.UtcNow()
	if err := account.AddClaimValue(claimType, value, now); err != nil {
		return err
	}

	if err := s.update(ctx, account); err != nil {
		return err
	}

	return s.events.Raise(ctx, domain.ClaimAddedEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Claim:    domain.Claim{Type: claimType, Value: value},
		Occurred: now,
	})
}

// RemoveClaim drops every claim of the given type.
func (s *AccountService) RemoveClaim(ctx context.Context, accountID uuid.UUID, claimType string) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	now := s.clock.UtcNow()
	if err := account.RemoveClaim(claimType, now); err != nil {
		return err
	}

	if err := s.update(ctx, account); err != nil {
		return err
	}

	return s.events.Raise(ctx, domain.ClaimRemovedEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Claim:    domain.Claim{Type: claimType},
		Occurred: now,
	})
}

// RemoveClaimValue drops a single (type, value) pair.
func (s *AccountService) RemoveClaimValue(ctx context.Context, accountID uuid.UUID, claimType, value string) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	now := s.clock.UtcNow()
	if err := account.RemoveClaimValue(claimType, value, now); err != nil {
		return err
	}

	if err := s.update(ctx, account); err != nil {
		return err
	}

	return s.events.Raise(ctx, domain.ClaimRemovedEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Claim:    domain.Claim{Type: claimType, Value: value},
		Occurred: now,
	})
}

// AddOrUpdateLinkedAccount binds an external identity, refreshing its claims
// and last-login stamp when the link already exists.
func (s *AccountService) AddOrUpdateLinkedAccount(ctx context.Context, accountID uuid.UUID, provider, providerAccountID string, claims []domain.Claim) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	now := s.clock.UtcNow()
	if err := account.AddOrUpdateLinkedAccount(provider, providerAccountID, claims, now); err != nil {
		return err
	}

	if err := s.update(ctx, account); err != nil {
		return err
	}

	return s.events.Raise(ctx, domain.LinkedAccountAddedEvent{
		EventID:           domain.NewEventID(),
		Account:           account,
		ProviderName:      provider,
		ProviderAccountID: providerAccountID,
		Occurred:          now,
	})
}

// RemoveLinkedAccount unbinds an external identity. Removing an unknown link
// is a no-op and raises nothing.
func (s *AccountService) RemoveLinkedAccount(ctx context.Context, accountID uuid.UUID, provider, providerAccountID string) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.GetLinkedAccount(provider, providerAccountID) == nil {
		return nil
	}

	now := s.clock.UtcNow()
	account.RemoveLinkedAccount(provider, providerAccountID, now)

	if err := s.update(ctx, account); err != nil {
		return err
	}

	return s.events.Raise(ctx, domain.LinkedAccountRemovedEvent{
		EventID:           domain.NewEventID(),
		Account:           account,
		ProviderName:      provider,
		ProviderAccountID: providerAccountID,
		Occurred:          now,
	})
}

// AccountByLinkedAccount resolves the account bound to an external identity.
func (s *AccountService) AccountByLinkedAccount(ctx context.Context, tenant, provider, providerAccountID string) (*domain.Account, error) {
	tenant = s.policy.Tenant(tenant)

	account, err := s.accounts.GetByLinkedAccount(ctx, tenant, provider, providerAccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup linked account: %w", err)
	}
	return account, nil
}

// AddCertificate binds an X.509 thumbprint, replacing any existing binding
// for the same thumbprint.
func (s *AccountService) AddCertificate(ctx context.Context, accountID uuid.UUID, thumbprint, subject string) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	now := s.clock.UtcNow()
	if err := account.AddCertificate(thumbprint, subject, now); err != nil {
		return err
	}

	if err := s.update(ctx, account); err != nil {
		return err
	}

	return s.events.Raise(ctx, domain.CertificateAddedEvent{
		EventID:    domain.NewEventID(),
		Account:    account,
		Thumbprint: thumbprint,
		Occurred:   now,
	})
}

// RemoveCertificate unbinds a thumbprint. Removing an unknown thumbprint is
// a no-op and raises nothing.
func (s *AccountService) RemoveCertificate(ctx context.Context, accountID uuid.UUID, thumbprint string) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.HasCertificate(thumbprint) {
		return nil
	}

	now := s.clock.UtcNow()
	account.RemoveCertificate(thumbprint, now)

	if err := s.update(ctx, account); err != nil {
		return err
	}

	return s.events.Raise(ctx, domain.CertificateRemovedEvent{
		EventID:    domain.NewEventID(),
		Account:    account,
		Thumbprint: thumbprint,
		Occurred:   now,
	})
}

// AuthenticateWithCertificate resolves the account bound to a thumbprint,
// trusting the host's TLS layer to have validated the certificate itself.
// Account state gates still apply.
func (s *AccountService) AuthenticateWithCertificate(ctx context.Context, tenant, thumbprint string) (AuthenticationResult, error) {
	tenant = s.policy.Tenant(tenant)
	result := AuthenticationResult{Result: domain.AuthInvalidCredentials}

	account, err := s.accounts.GetByCertificate(ctx, tenant, thumbprint)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordLogin(domain.AuthInvalidCredentials.String())
			return result, nil
		}
		return result, fmt.Errorf("lookup certificate: %w", err)
	}
	result.Account = account

	switch {
	case account.IsAccountClosed:
		result.Result = domain.AuthAccountClosed
	case !account.IsAccountVerified:
		result.Result = domain.AuthAccountNotVerified
	case !account.IsLoginAllowed:
		result.Result = domain.AuthLoginNotAllowed
	default:
		result.Result = domain.AuthSuccess
	}

	s.metrics.RecordLogin(result.Result.String())
	if result.Result != domain.AuthSuccess {
		return result, s.events.Raise(ctx, domain.FailedLoginEvent{
			EventID:  domain.NewEventID(),
			Account:  account,
			Result:   result.Result,
			Occurred: s.clock.UtcNow(),
		})
	}

	return result, s.events.Raise(ctx, domain.SuccessfulLoginEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Occurred: s.clock.UtcNow(),
	})
}

// VerifyTwoFactorCertificate completes a certificate-mode sign-in by
// checking the presented thumbprint against the account's bindings.
func (s *AccountService) VerifyTwoFactorCertificate(ctx context.Context, accountID uuid.UUID, thumbprint string) (bool, error) {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return false, err
	}
	if account.IsAccountClosed || !account.IsLoginAllowed {
		return false, nil
	}
	if !account.HasCertificate(thumbprint) {
		return false, nil
	}

	s.metrics.RecordLogin(domain.AuthSuccess.String())
	return true, s.events.Raise(ctx, domain.SuccessfulLoginEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Occurred: s.clock.UtcNow(),
	})
}
