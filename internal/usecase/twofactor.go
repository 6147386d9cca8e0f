package usecase

import (
	"context"
	"fmt"
	"time"

	uuid "github.com/google/uuid"

	"github.com/arklim/social-platform-accounts/internal/bus"
	"github.com/arklim/social-platform-accounts/internal/core/domain"
	"github.com/arklim/social-platform-accounts/internal/core/port"
	"github.com/arklim/social-platform-accounts/internal/infra/security"
)

// Remembered-device commands move device tokens between the service and
// wherever the host keeps them (a cookie, secure storage, or the bundled
// redis store). Handlers write results back into the command.

// GetRememberedDeviceCommand fetches the device token for an account.
type GetRememberedDeviceCommand struct {
	AccountID uuid.UUID
	// Token receives the stored value; empty when no device is remembered.
	Token string
}

// SetRememberedDeviceCommand stores a freshly issued device token.
type SetRememberedDeviceCommand struct {
	AccountID uuid.UUID
	Token     string
	TTL       time.Duration
}

// ClearRememberedDeviceCommand drops the stored device token.
type ClearRememberedDeviceCommand struct {
	AccountID uuid.UUID
}

// TwoFactorPolicy decides whether a successful password check still needs a
// second factor, and manages remembered-device grants. A remembered device
// must pass both the signed-token check (which binds the current password
// hash, so password changes revoke it) and the aggregate's hashed-token list
// (so the server can revoke it unilaterally).
type TwoFactorPolicy struct {
	issuer   *security.DeviceTokenIssuer
	commands *bus.CommandBus
}

// NewTwoFactorPolicy constructs the policy. A nil issuer means devices are
// never remembered and every sign-in is challenged.
func NewTwoFactorPolicy(issuer *security.DeviceTokenIssuer, commands *bus.CommandBus) *TwoFactorPolicy {
	return &TwoFactorPolicy{issuer: issuer, commands: commands}
}

// RequiresTwoFactor reports whether the account's configured second factor
// still has to be satisfied for this sign-in.
func (p *TwoFactorPolicy) RequiresTwoFactor(ctx context.Context, account *domain.Account, now time.Time) bool {
	if account.TwoFactorAuthMode == domain.TwoFactorAuthModeNone {
		return false
	}
	if p == nil || p.issuer == nil || p.commands == nil {
		return true
	}

	cmd := GetRememberedDeviceCommand{AccountID: account.ID}
	if err := p.commands.Execute(ctx, &cmd); err != nil || cmd.Token == "" {
		return true
	}
	if !p.issuer.Matches(cmd.Token, account.ID, account.HashedPassword) {
		return true
	}
	if !account.HasTwoFactorAuthToken(security.HashToken(cmd.Token), p.issuer.Lifetime(), now) {
		return true
	}
	return false
}

// IssueRememberedDevice mints a device token and records its hash on the
// aggregate. The caller persists the aggregate and then hands the raw token
// to SaveRememberedDevice, so a failed persist never leaves a live grant.
func (p *TwoFactorPolicy) IssueRememberedDevice(account *domain.Account, now time.Time) (string, error) {
	if p == nil || p.issuer == nil {
		return "", fmt.Errorf("no device token issuer configured")
	}

	token, err := p.issuer.Issue(account.ID, account.HashedPassword)
	if err != nil {
		return "", fmt.Errorf("issue device token: %w", err)
	}
	account.AddTwoFactorAuthToken(security.HashToken(token), now)
	return token, nil
}

// SaveRememberedDevice hands the raw token to the host store.
func (p *TwoFactorPolicy) SaveRememberedDevice(ctx context.Context, accountID uuid.UUID, token string) error {
	if p == nil || p.commands == nil {
		return nil
	}
	cmd := SetRememberedDeviceCommand{AccountID: accountID, Token: token, TTL: p.issuer.Lifetime()}
	return p.commands.Execute(ctx, &cmd)
}

// ForgetDevice drops the stored device token for the account.
func (p *TwoFactorPolicy) ForgetDevice(ctx context.Context, accountID uuid.UUID) error {
	if p == nil || p.commands == nil {
		return nil
	}
	cmd := ClearRememberedDeviceCommand{AccountID: accountID}
	return p.commands.Execute(ctx, &cmd)
}

// RegisterDeviceTokenStoreHandlers wires default handlers for the
// remembered-device commands onto a server-side token store. Hosts with
// their own storage (cookies) subscribe their own handlers instead.
func RegisterDeviceTokenStoreHandlers(commands *bus.CommandBus, store port.TwoFactorTokenStore) {
	if commands == nil || store == nil {
		return
	}

	bus.SubscribeCommand(commands, func(ctx context.Context, cmd *GetRememberedDeviceCommand) error {
		token, err := store.GetToken(ctx, cmd.AccountID.String())
		if err != nil {
			return fmt.Errorf("get remembered device: %w", err)
		}
		cmd.Token = token
		return nil
	})
	bus.SubscribeCommand(commands, func(ctx context.Context, cmd *SetRememberedDeviceCommand) error {
		if err := store.IssueToken(ctx, cmd.AccountID.String(), cmd.Token, cmd.TTL); err != nil {
			return fmt.Errorf("store remembered device: %w", err)
		}
		return nil
	})
	bus.SubscribeCommand(commands, func(ctx context.Context, cmd *ClearRememberedDeviceCommand) error {
		if err := store.RemoveToken(ctx, cmd.AccountID.String()); err != nil {
			return fmt.Errorf("clear remembered device: %w", err)
		}
		return nil
	})
}
