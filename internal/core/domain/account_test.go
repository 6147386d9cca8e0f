package domain

import (
	"errors"
	"testing"
	"time"
)

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }
func (fakeHasher) Verify(password, hashed string) bool  { return hashed == "hashed:"+password }

var testNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func testPolicy() SecurityPolicy {
	p := DefaultSecurityPolicy()
	p.MultiTenant = true
	return p
}

func mustNewAccount(t *testing.T, policy SecurityPolicy) *Account {
	t.Helper()
	a, err := NewAccount(policy, fakeHasher{}, "t1", "alice", "alice@example.com", "Secret123!", testNow)
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	return a
}

func TestNewAccountRequiresVerification(t *testing.T) {
	a := mustNewAccount(t, testPolicy())

	if a.IsAccountVerified {
		t.Fatalf("expected unverified account when verification is required")
	}
	if !a.IsLoginAllowed {
		t.Fatalf("expected login allowed per policy")
	}
	if a.VerificationKey == "" || a.VerificationKeySent == nil {
		t.Fatalf("expected verification key and send timestamp")
	}
	if a.VerificationPurpose != VerificationPurposeRegistration {
		t.Fatalf("expected registration purpose, got %q", a.VerificationPurpose)
	}
	if a.ID == a.NameID {
		t.Fatalf("expected distinct ID and NameID")
	}
}

func TestNewAccountWithoutVerification(t *testing.T) {
	policy := testPolicy()
	policy.RequireAccountVerification = false

	a := mustNewAccount(t, policy)
	if !a.IsAccountVerified {
		t.Fatalf("expected verified account when verification is not required")
	}
	if a.VerificationKey != "" {
		t.Fatalf("expected no verification key")
	}
}

func TestNewAccountValidation(t *testing.T) {
	policy := testPolicy()

	if _, err := NewAccount(policy, fakeHasher{}, "t1", "", "a@x.com", "pw", testNow); !errors.Is(err, ErrUsernameRequired) {
		t.Fatalf("expected ErrUsernameRequired, got %v", err)
	}
	if _, err := NewAccount(policy, fakeHasher{}, "t1", "bob", "a@x.com", "", testNow); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
	if _, err := NewAccount(policy, fakeHasher{}, "t1", "bob", "not-an-email", "pw", testNow); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := NewAccount(policy, nil, "t1", "bob", "a@x.com", "pw", testNow); err == nil || IsValidation(err) {
		t.Fatalf("expected argument error for nil hasher, got %v", err)
	}
}

func TestNewAccountEmailIsUsername(t *testing.T) {
	policy := testPolicy()
	policy.EmailIsUsername = true

	a, err := NewAccount(policy, fakeHasher{}, "t1", "", "alice@example.com", "pw123456", testNow)
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	if a.Username != "alice@example.com" {
		t.Fatalf("expected username to equal email, got %q", a.Username)
	}

	if _, err := NewAccount(policy, fakeHasher{}, "t1", "alice", "alice@example.com", "pw123456", testNow); !errors.Is(err, ErrUsernameMustBeEmail) {
		t.Fatalf("expected ErrUsernameMustBeEmail, got %v", err)
	}
}

func TestVerifyAccountIsIdempotentSoftFail(t *testing.T) {
	a := mustNewAccount(t, testPolicy())
	key := a.VerificationKey

	if a.VerifyAccount("wrong-key", testNow) {
		t.Fatalf("expected mismatched key to soft-fail")
	}
	if !a.VerifyAccount(key, testNow) {
		t.Fatalf("expected matching key to verify")
	}
	if !a.IsAccountVerified || a.VerificationKey != "" || a.VerificationPurpose != VerificationPurposeNone {
		t.Fatalf("expected verified account with cleared key")
	}

	// Second click on the same link.
	if a.VerifyAccount(key, testNow) {
		t.Fatalf("expected already-verified account to soft-fail")
	}
}

func TestAuthenticateHappyPath(t *testing.T) {
	a := mustNewAccount(t, testPolicy())
	a.VerifyAccount(a.VerificationKey, testNow)

	result, err := a.Authenticate(fakeHasher{}, "Secret123!", 5, 5*time.Minute, testNow)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result != AuthSuccess {
		t.Fatalf("expected success, got %v", result)
	}
	if a.LastLogin == nil || !a.LastLogin.Equal(testNow) {
		t.Fatalf("expected LastLogin to be stamped")
	}
	if a.FailedLoginCount != 0 {
		t.Fatalf("expected failed login count reset")
	}
}

func TestAuthenticateGuardsAccountState(t *testing.T) {
	policy := testPolicy()

	unverified := mustNewAccount(t, policy)
	if result, _ := unverified.Authenticate(fakeHasher{}, "Secret123!", 5, 5*time.Minute, testNow); result != AuthAccountNotVerified {
		t.Fatalf("expected AuthAccountNotVerified, got %v", result)
	}

	disallowed := mustNewAccount(t, policy)
	disallowed.VerifyAccount(disallowed.VerificationKey, testNow)
	disallowed.IsLoginAllowed = false
	if result, _ := disallowed.Authenticate(fakeHasher{}, "Secret123!", 5, 5*time.Minute, testNow); result != AuthLoginNotAllowed {
		t.Fatalf("expected AuthLoginNotAllowed, got %v", result)
	}

	closed := mustNewAccount(t, policy)
	closed.VerifyAccount(closed.VerificationKey, testNow)
	closed.CloseAccount(testNow)
	if result, _ := closed.Authenticate(fakeHasher{}, "Secret123!", 5, 5*time.Minute, testNow); result != AuthAccountClosed {
		t.Fatalf("expected AuthAccountClosed, got %v", result)
	}
}

func TestAuthenticateArgumentErrors(t *testing.T) {
	a := mustNewAccount(t, testPolicy())

	if _, err := a.Authenticate(fakeHasher{}, "pw", 0, 5*time.Minute, testNow); err == nil {
		t.Fatalf("expected error for non-positive lockout threshold")
	}
	if _, err := a.Authenticate(nil, "pw", 5, 5*time.Minute, testNow); err == nil {
		t.Fatalf("expected error for nil hasher")
	}
}

func TestLockoutDeniesCorrectPasswordAndKeepsCounting(t *testing.T) {
	a := mustNewAccount(t, testPolicy())
	a.VerifyAccount(a.VerificationKey, testNow)

	now := testNow
	for i := 0; i < 5; i++ {
		now = now.Add(time.Second)
		result, err := a.Authenticate(fakeHasher{}, "wrong", 5, 5*time.Minute, now)
		if err != nil {
			t.Fatalf("authenticate: %v", err)
		}
		if result != AuthInvalidCredentials {
			t.Fatalf("attempt %d: expected AuthInvalidCredentials, got %v", i, result)
		}
	}
	if a.FailedLoginCount != 5 {
		t.Fatalf("expected 5 failures, got %d", a.FailedLoginCount)
	}

	// Correct password inside the lockout window still fails, and the
	// counter keeps growing.
	now = now.Add(time.Second)
	result, err := a.Authenticate(fakeHasher{}, "Secret123!", 5, 5*time.Minute, now)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result != AuthTooManyFailures {
		t.Fatalf("expected AuthTooManyFailures, got %v", result)
	}
	if a.FailedLoginCount != 6 {
		t.Fatalf("expected counter to keep incrementing, got %d", a.FailedLoginCount)
	}

	// After the window passes the correct password succeeds and resets.
	now = now.Add(6 * time.Minute)
	result, err = a.Authenticate(fakeHasher{}, "Secret123!", 5, 5*time.Minute, now)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result != AuthSuccess {
		t.Fatalf("expected success after lockout window, got %v", result)
	}
	if a.FailedLoginCount != 0 {
		t.Fatalf("expected failed count reset, got %d", a.FailedLoginCount)
	}
}

func TestChangePasswordRequiresOldPassword(t *testing.T) {
	a := mustNewAccount(t, testPolicy())
	a.VerifyAccount(a.VerificationKey, testNow)

	if err := a.ChangePassword(fakeHasher{}, "wrong", "NewSecret1!", 5, 5*time.Minute, testNow); !errors.Is(err, ErrInvalidOldPassword) {
		t.Fatalf("expected ErrInvalidOldPassword, got %v", err)
	}

	if err := a.ChangePassword(fakeHasher{}, "Secret123!", "NewSecret1!", 5, 5*time.Minute, testNow.Add(time.Minute)); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if !(fakeHasher{}).Verify("NewSecret1!", a.HashedPassword) {
		t.Fatalf("expected new password to verify")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	a := mustNewAccount(t, testPolicy())
	a.VerifyAccount(a.VerificationKey, testNow)

	if err := a.RequestPasswordReset(24*time.Hour, testNow); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	key := a.VerificationKey
	if key == "" || a.VerificationPurpose != VerificationPurposePasswordReset {
		t.Fatalf("expected reset key, got purpose %q", a.VerificationPurpose)
	}

	// A fresh key is reused, not replaced.
	if err := a.RequestPasswordReset(24*time.Hour, testNow.Add(time.Hour)); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if a.VerificationKey != key {
		t.Fatalf("expected fresh key to be reused")
	}

	if !a.ChangePasswordFromResetKey(fakeHasher{}, key, "NewSecret1!", 24*time.Hour, testNow.Add(2*time.Hour)) {
		t.Fatalf("expected reset with valid key to succeed")
	}
	if a.VerificationKey != "" {
		t.Fatalf("expected key cleared after reset")
	}
	if !(fakeHasher{}).Verify("NewSecret1!", a.HashedPassword) {
		t.Fatalf("expected new password active")
	}
}

func TestPasswordResetKeyExpires(t *testing.T) {
	a := mustNewAccount(t, testPolicy())
	a.VerifyAccount(a.VerificationKey, testNow)

	if err := a.RequestPasswordReset(24*time.Hour, testNow); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	key := a.VerificationKey
	before := a.HashedPassword

	// 25 hours later the matching key is stale and must be rejected.
	if a.ChangePasswordFromResetKey(fakeHasher{}, key, "NewSecret1!", 24*time.Hour, testNow.Add(25*time.Hour)) {
		t.Fatalf("expected expired key to be rejected")
	}
	if a.HashedPassword != before {
		t.Fatalf("expected password unchanged after expired reset")
	}

	// A stale key is replaced on the next request.
	if err := a.RequestPasswordReset(24*time.Hour, testNow.Add(25*time.Hour)); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if a.VerificationKey == key {
		t.Fatalf("expected stale key to be reissued")
	}
}

func TestPasswordResetOnUnverifiedAccountReusesPendingKey(t *testing.T) {
	a := mustNewAccount(t, testPolicy())
	pending := a.VerificationKey

	if err := a.RequestPasswordReset(24*time.Hour, testNow.Add(time.Hour)); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if a.VerificationKey != pending || a.VerificationPurpose != VerificationPurposeRegistration {
		t.Fatalf("expected pending registration key to be reused")
	}
}

func TestCloseAccountBlocksEverything(t *testing.T) {
	a := mustNewAccount(t, testPolicy())
	a.VerifyAccount(a.VerificationKey, testNow)

	a.CloseAccount(testNow)
	if !a.IsAccountClosed || a.AccountClosed == nil || a.IsLoginAllowed {
		t.Fatalf("expected closed account with login disabled")
	}

	if err := a.RequestPasswordReset(24*time.Hour, testNow); !errors.Is(err, ErrAccountClosed) {
		t.Fatalf("expected ErrAccountClosed, got %v", err)
	}

	// Idempotent close.
	closedAt := *a.AccountClosed
	a.CloseAccount(testNow.Add(time.Hour))
	if !a.AccountClosed.Equal(closedAt) {
		t.Fatalf("expected repeated close to no-op")
	}

	if err := a.ReopenAccount(testNow.Add(2 * time.Hour)); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if a.IsAccountClosed || !a.IsLoginAllowed {
		t.Fatalf("expected reopened account to allow login")
	}
	if err := a.ReopenAccount(testNow); !errors.Is(err, ErrAccountNotClosed) {
		t.Fatalf("expected ErrAccountNotClosed, got %v", err)
	}
}
