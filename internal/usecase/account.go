package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-accounts/internal/bus"
	"github.com/arklim/social-platform-accounts/internal/core/domain"
	"github.com/arklim/social-platform-accounts/internal/core/port"
	"github.com/arklim/social-platform-accounts/internal/infra/logger"
	"github.com/arklim/social-platform-accounts/internal/infra/metrics"
	"github.com/arklim/social-platform-accounts/internal/infra/security"
	"github.com/arklim/social-platform-accounts/internal/repository"
)

// AuthenticationResult reports the outcome of a credential check.
type AuthenticationResult struct {
	// Account is set whenever an account matched the supplied identifier,
	// regardless of outcome.
	Account *domain.Account
	Result  domain.AuthResult
	// RequiresTwoFactor is set when the password cleared but the configured
	// second factor has not; the sign-in is incomplete until the code or
	// certificate is verified.
	RequiresTwoFactor bool
	TwoFactorMode     domain.TwoFactorAuthMode
}

// AccountServiceOptions carries the optional collaborators. Zero values fall
// back to working defaults (nop logger, system clock, fresh buses).
type AccountServiceOptions struct {
	Validator *security.PasswordValidator
	Clock     port.Clock
	Events    *bus.EventBus
	Commands  *bus.CommandBus
	TwoFactor *TwoFactorPolicy
	Metrics   *metrics.AccountMetrics
	Logger    *zap.Logger
	Tracer    trace.Tracer
}

// AccountService orchestrates account lifecycle operations: load, validate
// through the aggregate, persist, then raise events. State is always
// persisted before any event handler runs, so handlers observe committed
// state; a handler failure aborts the remaining handlers and propagates, but
// never rolls the persist back.
type AccountService struct {
	policy    domain.SecurityPolicy
	accounts  port.AccountRepository
	hasher    domain.PasswordHasher
	validator *security.PasswordValidator
	clock     port.Clock
	events    *bus.EventBus
	commands  *bus.CommandBus
	twoFactor *TwoFactorPolicy
	metrics   *metrics.AccountMetrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAccountService constructs the service.
func NewAccountService(policy domain.SecurityPolicy, accounts port.AccountRepository, hasher domain.PasswordHasher, opts AccountServiceOptions) (*AccountService, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("password hasher is required")
	}
	if policy.AccountLockoutFailedLoginAttempts <= 0 {
		return nil, fmt.Errorf("lockout threshold must be positive")
	}

	if opts.Validator == nil {
		opts.Validator = security.DefaultPasswordValidator()
	}
	if opts.Clock == nil {
		opts.Clock = port.SystemClock{}
	}
	if opts.Events == nil {
		opts.Events = bus.NewEventBus()
	}
	if opts.Commands == nil {
		opts.Commands = bus.NewCommandBus()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("accounts")
	}

	return &AccountService{
		policy:    policy,
		accounts:  accounts,
		hasher:    hasher,
		validator: opts.Validator,
		clock:     opts.Clock,
		events:    opts.Events,
		commands:  opts.Commands,
		twoFactor: opts.TwoFactor,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		tracer:    opts.Tracer,
	}, nil
}

// Events exposes the event bus for subscriber registration.
func (s *AccountService) Events() *bus.EventBus {
	return s.events
}

// Commands exposes the command bus for handler registration.
func (s *AccountService) Commands() *bus.CommandBus {
	return s.commands
}

// CreateAccount registers a new account in the tenant. Username and email
// must be free within the tenant; the password must clear the validator. The
// returned account is already persisted when the error is non-nil only due
// to a failed event handler.
func (s *AccountService) CreateAccount(ctx context.Context, tenant, username, email, password string) (*domain.Account, error) {
	ctx, span := s.tracer.Start(ctx, "AccountService.CreateAccount")
	defer span.End()

	tenant = s.policy.Tenant(tenant)

	if err := s.validator.Validate(password); err != nil {
		return nil, err
	}

	now := s.clock.UtcNow()
	account, err := domain.NewAccount(s.policy, s.hasher, tenant, username, email, password, now)
	if err != nil {
		return nil, err
	}

	if err := s.ensureUsernameFree(ctx, tenant, account.Username); err != nil {
		return nil, err
	}
	if account.Email != "" && account.Email != account.Username {
		if err := s.ensureEmailFree(ctx, tenant, account.Email); err != nil {
			return nil, err
		}
	}

	if err := s.accounts.Add(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.ErrUsernameAlreadyInUse
		}
		return nil, fmt.Errorf("add account: %w", err)
	}

	s.metrics.RecordAccountCreated()
	if account.VerificationKey != "" {
		s.metrics.RecordVerificationKey(string(domain.VerificationPurposeRegistration))
	}
	s.logger.Info("account created",
		zap.String("account_id", account.ID.String()),
		zap.String("tenant", account.Tenant),
		zap.String("username", logger.MaskEmail(account.Username)),
	)

	err = s.events.Raise(ctx, domain.AccountCreatedEvent{
		EventID:         domain.NewEventID(),
		Account:         account,
		VerificationKey: account.VerificationKey,
		Occurred:        now,
	})
	return account, err
}

// VerifyAccount redeems a registration key. Wrong, reused, or unknown keys
// soft-fail with false so confirmation links can be clicked repeatedly.
func (s *AccountService) VerifyAccount(ctx context.Context, key string) (bool, error) {
	account, err := s.accounts.GetByVerificationKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup verification key: %w", err)
	}

	now := s.clock.UtcNow()
	if !account.VerifyAccount(key, now) {
		return false, nil
	}

	if err := s.update(ctx, account); err != nil {
		return false, err
	}

	s.logger.Info("account verified", zap.String("account_id", account.ID.String()))
	return true, s.events.Raise(ctx, domain.AccountVerifiedEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Occurred: now,
	})
}

// Authenticate checks a username/password pair. An unknown username yields
// AuthInvalidCredentials without distinguishing itself from a wrong password.
// When the account has a second factor configured and the device is not
// remembered, the result carries RequiresTwoFactor and, in mobile mode, a
// sign-in code has been issued for delivery.
func (s *AccountService) Authenticate(ctx context.Context, tenant, username, password string) (AuthenticationResult, error) {
	ctx, span := s.tracer.Start(ctx, "AccountService.Authenticate")
	defer span.End()

	tenant = s.policy.Tenant(tenant)
	result := AuthenticationResult{Result: domain.AuthInvalidCredentials}

	account, err := s.accounts.GetByUsername(ctx, tenant, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordLogin(domain.AuthInvalidCredentials.String())
			return result, nil
		}
		return result, fmt.Errorf("lookup username: %w", err)
	}

	return s.authenticateAccount(ctx, account, username, password, result)
}

// AuthenticateWithUsernameOrEmail tries the credential as a username first
// and, when it contains an "@", as an email address. Unknown identifiers
// yield AuthInvalidCredentials, same as a wrong password.
func (s *AccountService) AuthenticateWithUsernameOrEmail(ctx context.Context, tenant, usernameOrEmail, password string) (AuthenticationResult, error) {
	ctx, span := s.tracer.Start(ctx, "AccountService.AuthenticateWithUsernameOrEmail")
	defer span.End()

	tenant = s.policy.Tenant(tenant)
	result := AuthenticationResult{Result: domain.AuthInvalidCredentials}

	account, err := s.accounts.GetByUsername(ctx, tenant, usernameOrEmail)
	if errors.Is(err, repository.ErrNotFound) && strings.Contains(usernameOrEmail, "@") {
		account, err = s.accounts.GetByEmail(ctx, tenant, usernameOrEmail)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordLogin(domain.AuthInvalidCredentials.String())
			return result, nil
		}
		return result, fmt.Errorf("lookup account: %w", err)
	}

	return s.authenticateAccount(ctx, account, usernameOrEmail, password, result)
}

func (s *AccountService) authenticateAccount(ctx context.Context, account *domain.Account, presented, password string, result AuthenticationResult) (AuthenticationResult, error) {
	result.Account = account

	now := s.clock.UtcNow()
	authResult, err := account.Authenticate(s.hasher, password, s.policy.AccountLockoutFailedLoginAttempts, s.policy.AccountLockoutDuration, now)
	if err != nil {
		return result, err
	}
	result.Result = authResult

	var pending []any
	switch authResult {
	case domain.AuthSuccess:
		if s.twoFactor.RequiresTwoFactor(ctx, account, now) {
			result.RequiresTwoFactor = true
			result.TwoFactorMode = account.TwoFactorAuthMode
			if account.TwoFactorAuthMode == domain.TwoFactorAuthModeMobile {
				code, codeErr := account.RequestTwoFactorAuthCode(now)
				if codeErr != nil {
					return result, codeErr
				}
				pending = append(pending, domain.TwoFactorAuthCodeNotificationEvent{
					EventID:  domain.NewEventID(),
					Account:  account,
					Code:     code,
					Occurred: now,
				})
			}
		} else {
			pending = append(pending, domain.SuccessfulLoginEvent{
				EventID:  domain.NewEventID(),
				Account:  account,
				Occurred: now,
			})
		}
	case domain.AuthTooManyFailures:
		s.metrics.RecordLockout()
		pending = append(pending, domain.TooManyRecentPasswordFailuresEvent{
			EventID:  domain.NewEventID(),
			Account:  account,
			Occurred: now,
		})
	default:
		pending = append(pending, domain.FailedLoginEvent{
			EventID:  domain.NewEventID(),
			Account:  account,
			Result:   authResult,
			Occurred: now,
		})
	}

	// Closed, unverified and login-disabled outcomes leave the aggregate
	// untouched; everything else updated counters or timestamps.
	switch authResult {
	case domain.AuthAccountClosed, domain.AuthAccountNotVerified, domain.AuthLoginNotAllowed:
	default:
		if err := s.update(ctx, account); err != nil {
			return result, err
		}
	}

	s.metrics.RecordLogin(loginOutcome(result))
	if authResult != domain.AuthSuccess {
		s.logger.Info("authentication rejected",
			zap.String("account_id", account.ID.String()),
			zap.String("username", logger.MaskEmail(presented)),
			zap.Int("outcome", int(authResult)),
		)
	}

	return result, s.events.Raise(ctx, pending...)
}

// VerifyTwoFactorCode completes a mobile-mode sign-in. On success the login
// is stamped; with rememberDevice the device skips the second factor until
// the grant lapses or the password changes.
func (s *AccountService) VerifyTwoFactorCode(ctx context.Context, accountID uuid.UUID, code string, rememberDevice bool) (bool, error) {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return false, err
	}

	now := s.clock.UtcNow()
	if !account.VerifyTwoFactorAuthCode(code, s.policy.TwoFactorCodeLifetime, now) {
		return false, nil
	}

	var deviceToken string
	if rememberDevice {
		deviceToken, err = s.twoFactor.IssueRememberedDevice(account, now)
		if err != nil {
			s.logger.Warn("remember device failed", zap.String("account_id", account.ID.String()), zap.Error(err))
			deviceToken = ""
		}
	}

	if err := s.update(ctx, account); err != nil {
		return false, err
	}

	if deviceToken != "" {
		if err := s.twoFactor.SaveRememberedDevice(ctx, account.ID, deviceToken); err != nil {
			s.logger.Warn("store device token failed", zap.String("account_id", account.ID.String()), zap.Error(err))
		}
	}

	s.metrics.RecordLogin(domain.AuthSuccess.String())
	return true, s.events.Raise(ctx, domain.SuccessfulLoginEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Occurred: now,
	})
}

// SendTwoFactorCode issues a fresh sign-in code, replacing any outstanding
// one, and raises it for delivery.
func (s *AccountService) SendTwoFactorCode(ctx context.Context, accountID uuid.UUID) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	now := s.clock.UtcNow()
	code, err := account.RequestTwoFactorAuthCode(now)
	if err != nil {
		return err
	}

	if err := s.update(ctx, account); err != nil {
		return err
	}

	return s.events.Raise(ctx, domain.TwoFactorAuthCodeNotificationEvent{
		EventID:  domain.NewEventID(),
		Account:  account,
		Code:     code,
		Occurred: now,
	})
}

// ConfigureTwoFactorAuth selects the second factor for future sign-ins.
// Disabling it also drops any server-side remembered device.
func (s *AccountService) ConfigureTwoFactorAuth(ctx context.Context, accountID uuid.UUID, mode domain.TwoFactorAuthMode) error {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return err
	}

	now := s.clock.UtcNow()
	if err := account.ConfigureTwoFactorAuth(mode, now); err != nil {
		return err
	}

	if err := s.update(ctx, account); err != nil {
		return err
	}

	if mode == domain.TwoFactorAuthModeNone {
		if err := s.twoFactor.ForgetDevice(ctx, account.ID); err != nil {
			s.logger.Warn("forget device failed", zap.String("account_id", account.ID.String()), zap.Error(err))
		}
	}
	return nil
}

func (s *AccountService) ensureUsernameFree(ctx context.Context, tenant, username string) error {
	_, err := s.accounts.GetByUsername(ctx, tenant, username)
	if err == nil {
		return domain.ErrUsernameAlreadyInUse
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("lookup username: %w", err)
	}
	return nil
}

func (s *AccountService) ensureEmailFree(ctx context.Context, tenant, email string) error {
	_, err := s.accounts.GetByEmail(ctx, tenant, email)
	if err == nil {
		return domain.ErrEmailAlreadyInUse
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("lookup email: %w", err)
	}
	return nil
}

func (s *AccountService) loadByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return account, nil
}

func (s *AccountService) update(ctx context.Context, account *domain.Account) error {
	if err := s.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func loginOutcome(result AuthenticationResult) string {
	if result.RequiresTwoFactor {
		return "two_factor_required"
	}
	return result.Result.String()
}
