package domain

import (
	"encoding/base64"
	"strings"
	"time"

	uuid "github.com/google/uuid"
)

// VerificationPurpose records why a verification key was issued.
type VerificationPurpose string

const (
	VerificationPurposeNone          VerificationPurpose = ""
	VerificationPurposeRegistration  VerificationPurpose = "registration"
	VerificationPurposePasswordReset VerificationPurpose = "password_reset"
	VerificationPurposeChangeEmail   VerificationPurpose = "change_email"
	VerificationPurposeChangeMobile  VerificationPurpose = "change_mobile"
	VerificationPurposeDeleteAccount VerificationPurpose = "delete_account"
)

// TwoFactorAuthMode selects the second factor required at sign-in.
type TwoFactorAuthMode string

const (
	TwoFactorAuthModeNone        TwoFactorAuthMode = "none"
	TwoFactorAuthModeMobile      TwoFactorAuthMode = "mobile"
	TwoFactorAuthModeCertificate TwoFactorAuthMode = "certificate"
)

// PasswordHasher hashes and verifies passwords. Defined here so aggregate
// methods can stretch credentials without depending on the infra layer.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hashed string) bool
}

// AuthResult classifies the outcome of an authentication attempt.
type AuthResult int

const (
	AuthSuccess AuthResult = iota
	AuthInvalidCredentials
	AuthAccountNotVerified
	AuthLoginNotAllowed
	AuthAccountClosed
	AuthTooManyFailures
)

func (r AuthResult) String() string {
	switch r {
	case AuthSuccess:
		return "success"
	case AuthInvalidCredentials:
		return "invalid_credentials"
	case AuthAccountNotVerified:
		return "not_verified"
	case AuthLoginNotAllowed:
		return "login_not_allowed"
	case AuthAccountClosed:
		return "account_closed"
	case AuthTooManyFailures:
		return "too_many_failures"
	default:
		return "unknown"
	}
}

// Account is the aggregate root for a user account. All state transitions go
// through its methods; callers never assign fields directly.
type Account struct {
	ID       uuid.UUID
	Tenant   string
	Username string
	Email    string
	// NameID is the stable external identifier. It never changes, even when
	// the username or email does, and is never reused.
	NameID uuid.UUID

	Created     time.Time
	LastUpdated time.Time

	HashedPassword  string
	PasswordChanged time.Time

	IsAccountVerified   bool
	VerificationKey     string
	VerificationKeySent *time.Time
	VerificationPurpose VerificationPurpose
	// PendingNewEmail holds the address awaiting confirmation during an
	// email change.
	PendingNewEmail string

	IsLoginAllowed   bool
	IsAccountClosed  bool
	AccountClosed    *time.Time
	LastLogin        *time.Time
	LastFailedLogin  *time.Time
	FailedLoginCount int

	MobilePhoneNumber  string
	PendingMobilePhone string
	MobileCode         string
	MobileCodeSent     *time.Time
	TwoFactorAuthMode  TwoFactorAuthMode

	Claims               []Claim
	LinkedAccounts       []LinkedAccount
	Certificates         []Certificate
	TwoFactorAuthTokens  []TwoFactorAuthToken
	PasswordResetSecrets []PasswordResetSecret

	// Version is the optimistic-concurrency token maintained by the
	// persistence layer.
	Version int64
}

// NewAccount creates an account under the supplied policy. The password is
// hashed immediately; if verification is required a registration key is
// issued and its send timestamp recorded.
func NewAccount(policy SecurityPolicy, hasher PasswordHasher, tenant, username, email, password string, now time.Time) (*Account, error) {
	if hasher == nil {
		return nil, errNilHasher
	}

	tenant = policy.Tenant(tenant)
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if policy.EmailIsUsername {
		if email == "" {
			return nil, ErrEmailRequired
		}
		if username != "" && username != email {
			return nil, ErrUsernameMustBeEmail
		}
		username = email
	}
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if email != "" && !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	a := &Account{
		ID:                uuid.New(),
		NameID:            uuid.New(),
		Tenant:            tenant,
		Username:          username,
		Email:             email,
		Created:           now,
		LastUpdated:       now,
		IsAccountVerified: !policy.RequireAccountVerification,
		IsLoginAllowed:    policy.AllowLoginAfterAccountCreation,
		TwoFactorAuthMode: TwoFactorAuthModeNone,
	}

	if err := a.setPassword(hasher, password, now); err != nil {
		return nil, err
	}

	if policy.RequireAccountVerification {
		a.setVerificationKey(VerificationPurposeRegistration, now)
	}

	return a, nil
}

// VerifyAccount confirms ownership via the registration key. It soft-fails
// (returns false) when the account is already verified or the key does not
// match, so repeatedly clicked confirmation links stay harmless.
func (a *Account) VerifyAccount(key string, now time.Time) bool {
	if a.IsAccountVerified {
		return false
	}
	if key == "" || a.VerificationKey == "" || a.VerificationKey != key {
		return false
	}

	a.IsAccountVerified = true
	a.clearVerificationKey()
	a.touch(now)
	return true
}

// Authenticate checks the password subject to lockout accounting.
// lockoutThreshold must be positive; a non-positive value is a caller bug.
//
// While the account is inside the lockout window the counter keeps growing
// and the password is never inspected, so a locked account is
// indistinguishable from a wrong password to the caller.
func (a *Account) Authenticate(hasher PasswordHasher, password string, lockoutThreshold int, lockoutDuration time.Duration, now time.Time) (AuthResult, error) {
	if hasher == nil {
		return AuthInvalidCredentials, errNilHasher
	}
	if lockoutThreshold <= 0 {
		return AuthInvalidCredentials, errNonPositiveThreshold
	}

	switch {
	case a.IsAccountClosed:
		return AuthAccountClosed, nil
	case !a.IsAccountVerified:
		return AuthAccountNotVerified, nil
	case !a.IsLoginAllowed:
		return AuthLoginNotAllowed, nil
	}

	if a.hasTooManyRecentPasswordFailures(lockoutThreshold, lockoutDuration, now) {
		a.touch(now)
		return AuthTooManyFailures, nil
	}

	if password == "" || a.HashedPassword == "" || !hasher.Verify(password, a.HashedPassword) {
		a.recordFailedLogin(now)
		a.touch(now)
		return AuthInvalidCredentials, nil
	}

	a.FailedLoginCount = 0
	last := now
	a.LastLogin = &last
	a.touch(now)
	return AuthSuccess, nil
}

// ChangePassword verifies the old password (with full lockout semantics) and
// replaces it with the new one.
func (a *Account) ChangePassword(hasher PasswordHasher, oldPassword, newPassword string, lockoutThreshold int, lockoutDuration time.Duration, now time.Time) error {
	result, err := a.Authenticate(hasher, oldPassword, lockoutThreshold, lockoutDuration, now)
	if err != nil {
		return err
	}
	if result != AuthSuccess {
		return ErrInvalidOldPassword
	}
	return a.setPassword(hasher, newPassword, now)
}

// RequestPasswordReset prepares a reset key. Unverified accounts keep their
// pending registration key (the caller re-sends it); verified accounts reuse
// a fresh reset key or get a new one when the old key is stale or issued for
// another purpose.
func (a *Account) RequestPasswordReset(keyLifetime time.Duration, now time.Time) error {
	if a.IsAccountClosed {
		return ErrAccountClosed
	}

	if !a.IsAccountVerified {
		if a.VerificationPurpose != VerificationPurposeRegistration || a.VerificationKey == "" {
			a.setVerificationKey(VerificationPurposeRegistration, now)
			a.touch(now)
		}
		return nil
	}

	if a.VerificationPurpose != VerificationPurposePasswordReset || a.isVerificationKeyStale(keyLifetime, now) {
		a.setVerificationKey(VerificationPurposePasswordReset, now)
		a.touch(now)
	}
	return nil
}

// ChangePasswordFromResetKey applies a new password when the reset key
// matches and is within its staleness window. An expired key is rejected
// even when it matches. Soft-fails with false on any mismatch.
func (a *Account) ChangePasswordFromResetKey(hasher PasswordHasher, key, newPassword string, keyLifetime time.Duration, now time.Time) bool {
	if hasher == nil || !a.IsAccountVerified || a.IsAccountClosed {
		return false
	}
	if a.VerificationPurpose != VerificationPurposePasswordReset {
		return false
	}
	if a.isVerificationKeyStale(keyLifetime, now) {
		return false
	}
	if key == "" || a.VerificationKey != key {
		return false
	}
	if err := a.setPassword(hasher, newPassword, now); err != nil {
		return false
	}

	a.clearVerificationKey()
	a.touch(now)
	return true
}

func (a *Account) setPassword(hasher PasswordHasher, password string, now time.Time) error {
	if strings.TrimSpace(password) == "" {
		return ErrPasswordRequired
	}

	hashed, err := hasher.Hash(password)
	if err != nil {
		return err
	}

	a.HashedPassword = hashed
	a.PasswordChanged = now
	// New credentials void every server-side remembered-device grant.
	a.TwoFactorAuthTokens = nil
	a.touch(now)
	return nil
}

func (a *Account) hasTooManyRecentPasswordFailures(threshold int, duration time.Duration, now time.Time) bool {
	if a.FailedLoginCount < threshold || a.LastFailedLogin == nil {
		return false
	}
	if now.Sub(*a.LastFailedLogin) > duration {
		return false
	}

	// Still counting while locked: the monotonic counter doubles as an
	// ongoing-attack signal and keeps the response timing uniform.
	a.FailedLoginCount++
	return true
}

func (a *Account) recordFailedLogin(now time.Time) {
	last := now
	a.LastFailedLogin = &last
	if a.FailedLoginCount <= 0 {
		a.FailedLoginCount = 1
		return
	}
	a.FailedLoginCount++
}

func (a *Account) setVerificationKey(purpose VerificationPurpose, now time.Time) string {
	a.VerificationKey = newVerificationKey()
	sent := now
	a.VerificationKeySent = &sent
	a.VerificationPurpose = purpose
	return a.VerificationKey
}

func (a *Account) clearVerificationKey() {
	a.VerificationKey = ""
	a.VerificationKeySent = nil
	a.VerificationPurpose = VerificationPurposeNone
	a.PendingNewEmail = ""
}

func (a *Account) isVerificationKeyStale(lifetime time.Duration, now time.Time) bool {
	if a.VerificationKeySent == nil {
		return true
	}
	return now.Sub(*a.VerificationKeySent) > lifetime
}

func (a *Account) touch(now time.Time) {
	a.LastUpdated = now
}

// newVerificationKey returns an opaque single-use key. UUIDs come from
// crypto/rand, and the base64 form is stripped of URL-hostile characters so
// the key survives being embedded in links.
func newVerificationKey() string {
	id := uuid.New()
	encoded := base64.RawURLEncoding.EncodeToString(id[:])
	return strings.TrimRight(encoded, "=")
}

var (
	errNilHasher            = argErr("password hasher is required")
	errNonPositiveThreshold = argErr("lockout threshold must be positive")
)

// argErr distinguishes programmer errors from validation errors.
type argError struct{ msg string }

func argErr(msg string) error         { return &argError{msg: msg} }
func (e *argError) Error() string     { return e.msg }
