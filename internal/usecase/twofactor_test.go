package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/arklim/social-platform-accounts/internal/bus"
	"github.com/arklim/social-platform-accounts/internal/core/domain"
	"github.com/arklim/social-platform-accounts/internal/infra/security"
)

// memTokenStore is a map-backed stand-in for the host's device token
// storage. TTLs are ignored; staleness is enforced by the policy itself.
type memTokenStore struct {
	tokens map[string]string
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: make(map[string]string)}
}

func (m *memTokenStore) GetToken(_ context.Context, name string) (string, error) {
	return m.tokens[name], nil
}

func (m *memTokenStore) IssueToken(_ context.Context, name, value string, _ time.Duration) error {
	m.tokens[name] = value
	return nil
}

func (m *memTokenStore) RemoveToken(_ context.Context, name string) error {
	delete(m.tokens, name)
	return nil
}

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func newTwoFactorEnv(t *testing.T) (*testEnv, *memTokenStore) {
	t.Helper()

	env := newTestEnv(t, nil)

	issuer, err := security.NewDeviceTokenIssuer(testSigningKey, 30*24*time.Hour, env.clock.UtcNow)
	if err != nil {
		t.Fatalf("NewDeviceTokenIssuer: %v", err)
	}

	store := newMemTokenStore()
	commands := env.svc.Commands()
	RegisterDeviceTokenStoreHandlers(commands, store)
	env.svc.twoFactor = NewTwoFactorPolicy(issuer, commands)

	return env, store
}

func enableMobileTwoFactor(t *testing.T, env *testEnv, account *domain.Account) {
	t.Helper()

	ctx := context.Background()
	if err := env.svc.RequestMobileChange(ctx, account.ID, "+12025550147"); err != nil {
		t.Fatalf("RequestMobileChange: %v", err)
	}

	stored, _ := env.repo.GetByID(ctx, account.ID)
	ok, err := env.svc.ConfirmMobileFromCode(ctx, account.ID, stored.MobileCode)
	if err != nil || !ok {
		t.Fatalf("ConfirmMobileFromCode: ok=%v err=%v", ok, err)
	}

	if err := env.svc.ConfigureTwoFactorAuth(ctx, account.ID, domain.TwoFactorAuthModeMobile); err != nil {
		t.Fatalf("ConfigureTwoFactorAuth: %v", err)
	}
}

func TestAuthenticateWithMobileTwoFactorIssuesCode(t *testing.T) {
	env, _ := newTwoFactorEnv(t)
	account := env.createVerifiedAccount(t, "alice", "alice@example.com")
	enableMobileTwoFactor(t, env, account)

	var code string
	var logins int
	bus.SubscribeEvent(env.events, func(_ context.Context, evt domain.TwoFactorAuthCodeNotificationEvent) error {
		code = evt.Code
		return nil
	})
	bus.SubscribeEvent(env.events, func(_ context.Context, _ domain.SuccessfulLoginEvent) error {
		logins++
		return nil
	})

	result, err := env.svc.Authenticate(context.Background(), "", "alice", testPassword)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if result.Result != domain.AuthSuccess || !result.RequiresTwoFactor {
		t.Fatalf("expected a pending second factor, got result=%v requires=%v", result.Result, result.RequiresTwoFactor)
	}
	if result.TwoFactorMode != domain.TwoFactorAuthModeMobile {
		t.Errorf("expected mobile mode, got %v", result.TwoFactorMode)
	}
	if len(code) != 6 {
		t.Fatalf("expected a 6-digit code delivered, got %q", code)
	}
	if logins != 0 {
		t.Error("no SuccessfulLoginEvent until the second factor clears")
	}

	ok, err := env.svc.VerifyTwoFactorCode(context.Background(), account.ID, code, false)
	if err != nil || !ok {
		t.Fatalf("VerifyTwoFactorCode: ok=%v err=%v", ok, err)
	}
	if logins != 1 {
		t.Errorf("expected 1 SuccessfulLoginEvent after the code cleared, got %d", logins)
	}
}

func TestVerifyTwoFactorCodeRejectsStaleCode(t *testing.T) {
	env, _ := newTwoFactorEnv(t)
	account := env.createVerifiedAccount(t, "alice", "alice@example.com")
	enableMobileTwoFactor(t, env, account)

	var code string
	bus.SubscribeEvent(env.events, func(_ context.Context, evt domain.TwoFactorAuthCodeNotificationEvent) error {
		code = evt.Code
		return nil
	})
	if _, err := env.svc.Authenticate(context.Background(), "", "alice", testPassword); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	env.clock.current = env.clock.current.Add(21 * time.Minute)
	ok, err := env.svc.VerifyTwoFactorCode(context.Background(), account.ID, code, false)
	if err != nil {
		t.Fatalf("stale verification errored: %v", err)
	}
	if ok {
		t.Error("a code past its lifetime must be rejected")
	}
}

func TestRememberedDeviceSkipsSecondFactor(t *testing.T) {
	env, store := newTwoFactorEnv(t)
	account := env.createVerifiedAccount(t, "alice", "alice@example.com")
	enableMobileTwoFactor(t, env, account)

	var code string
	bus.SubscribeEvent(env.events, func(_ context.Context, evt domain.TwoFactorAuthCodeNotificationEvent) error {
		code = evt.Code
		return nil
	})
	if _, err := env.svc.Authenticate(context.Background(), "", "alice", testPassword); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	ok, err := env.svc.VerifyTwoFactorCode(context.Background(), account.ID, code, true)
	if err != nil || !ok {
		t.Fatalf("VerifyTwoFactorCode: ok=%v err=%v", ok, err)
	}
	if store.tokens[account.ID.String()] == "" {
		t.Fatal("expected a device token stored")
	}

	result, err := env.svc.Authenticate(context.Background(), "", "alice", testPassword)
	if err != nil {
		t.Fatalf("second Authenticate: %v", err)
	}
	if result.RequiresTwoFactor {
		t.Error("a remembered device must skip the second factor")
	}
	if result.Result != domain.AuthSuccess {
		t.Errorf("expected AuthSuccess, got %v", result.Result)
	}
}

func TestPasswordChangeRevokesRememberedDevice(t *testing.T) {
	env, _ := newTwoFactorEnv(t)
	account := env.createVerifiedAccount(t, "alice", "alice@example.com")
	enableMobileTwoFactor(t, env, account)

	var code string
	bus.SubscribeEvent(env.events, func(_ context.Context, evt domain.TwoFactorAuthCodeNotificationEvent) error {
		code = evt.Code
		return nil
	})
	if _, err := env.svc.Authenticate(context.Background(), "", "alice", testPassword); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ok, err := env.svc.VerifyTwoFactorCode(context.Background(), account.ID, code, true); err != nil || !ok {
		t.Fatalf("VerifyTwoFactorCode: ok=%v err=%v", ok, err)
	}

	if err := env.svc.ChangePassword(context.Background(), account.ID, testPassword, "NewSecret456!"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	result, err := env.svc.Authenticate(context.Background(), "", "alice", "NewSecret456!")
	if err != nil {
		t.Fatalf("post-change Authenticate: %v", err)
	}
	if !result.RequiresTwoFactor {
		t.Error("a password change must revoke remembered devices")
	}
}

func TestDisablingTwoFactorForgetsDevice(t *testing.T) {
	env, store := newTwoFactorEnv(t)
	account := env.createVerifiedAccount(t, "alice", "alice@example.com")
	enableMobileTwoFactor(t, env, account)

	var code string
	bus.SubscribeEvent(env.events, func(_ context.Context, evt domain.TwoFactorAuthCodeNotificationEvent) error {
		code = evt.Code
		return nil
	})
	if _, err := env.svc.Authenticate(context.Background(), "", "alice", testPassword); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ok, err := env.svc.VerifyTwoFactorCode(context.Background(), account.ID, code, true); err != nil || !ok {
		t.Fatalf("VerifyTwoFactorCode: ok=%v err=%v", ok, err)
	}

	if err := env.svc.ConfigureTwoFactorAuth(context.Background(), account.ID, domain.TwoFactorAuthModeNone); err != nil {
		t.Fatalf("ConfigureTwoFactorAuth: %v", err)
	}
	if store.tokens[account.ID.String()] != "" {
		t.Error("disabling two-factor must drop the stored device token")
	}
}
