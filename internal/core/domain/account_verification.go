package domain

import (
	"strings"
	"time"
)

// ChangeUsername renames the account. NameID is untouched, so external
// references keep resolving.
func (a *Account) ChangeUsername(policy SecurityPolicy, newUsername string, now time.Time) error {
	if a.IsAccountClosed {
		return ErrAccountClosed
	}
	if policy.EmailIsUsername {
		return ErrUsernameChangeViaEmail
	}

	newUsername = strings.TrimSpace(newUsername)
	if newUsername == "" {
		return ErrUsernameRequired
	}

	a.Username = newUsername
	a.touch(now)
	return nil
}

// RequestEmailChange issues a change-email verification key and records the
// pending address. The current email stays active until the key is redeemed.
func (a *Account) RequestEmailChange(newEmail string, now time.Time) error {
	if a.IsAccountClosed {
		return ErrAccountClosed
	}

	newEmail = strings.TrimSpace(newEmail)
	if newEmail == "" {
		return ErrEmailRequired
	}
	if !strings.Contains(newEmail, "@") {
		return ErrInvalidEmail
	}

	a.setVerificationKey(VerificationPurposeChangeEmail, now)
	a.PendingNewEmail = newEmail
	a.touch(now)
	return nil
}

// VerifyEmailFromKey applies a pending email change. Soft-fails with false on
// a wrong, stale, or repurposed key.
func (a *Account) VerifyEmailFromKey(policy SecurityPolicy, key string, now time.Time) bool {
	if a.IsAccountClosed {
		return false
	}
	if a.VerificationPurpose != VerificationPurposeChangeEmail || a.PendingNewEmail == "" {
		return false
	}
	if a.isVerificationKeyStale(policy.VerificationKeyLifetime, now) {
		return false
	}
	if key == "" || a.VerificationKey != key {
		return false
	}

	a.Email = a.PendingNewEmail
	if policy.EmailIsUsername {
		a.Username = a.Email
	}
	a.clearVerificationKey()
	a.touch(now)
	return true
}

// RequestMobileChange issues a short numeric code for confirming a new
// mobile phone number.
func (a *Account) RequestMobileChange(newPhone string, now time.Time) (string, error) {
	if a.IsAccountClosed {
		return "", ErrAccountClosed
	}

	newPhone = strings.TrimSpace(newPhone)
	if newPhone == "" {
		return "", ErrMobilePhoneRequired
	}

	code, err := newNumericCode(mobileCodeLength)
	if err != nil {
		return "", err
	}

	a.PendingMobilePhone = newPhone
	a.MobileCode = code
	sent := now
	a.MobileCodeSent = &sent
	a.VerificationPurpose = VerificationPurposeChangeMobile
	a.touch(now)
	return code, nil
}

// ConfirmMobileFromCode applies a pending mobile change. Soft-fails with
// false when the code is wrong or stale.
func (a *Account) ConfirmMobileFromCode(code string, codeLifetime time.Duration, now time.Time) bool {
	if a.IsAccountClosed || a.PendingMobilePhone == "" {
		return false
	}
	if a.VerificationPurpose != VerificationPurposeChangeMobile {
		return false
	}
	if !a.isMobileCodeCurrent(code, codeLifetime, now) {
		return false
	}

	a.MobilePhoneNumber = a.PendingMobilePhone
	a.clearMobileCode()
	a.VerificationPurpose = VerificationPurposeNone
	a.touch(now)
	return true
}

// ConfigureTwoFactorAuth selects the second factor for future sign-ins.
// Mobile mode requires a confirmed phone number.
func (a *Account) ConfigureTwoFactorAuth(mode TwoFactorAuthMode, now time.Time) error {
	if a.IsAccountClosed {
		return ErrAccountClosed
	}
	if mode == TwoFactorAuthModeMobile && a.MobilePhoneNumber == "" {
		return ErrMobilePhoneMissing
	}

	a.TwoFactorAuthMode = mode
	if mode == TwoFactorAuthModeNone {
		a.TwoFactorAuthTokens = nil
		a.clearMobileCode()
	}
	a.touch(now)
	return nil
}

// RequestTwoFactorAuthCode issues a sign-in code for mobile two-factor mode.
func (a *Account) RequestTwoFactorAuthCode(now time.Time) (string, error) {
	if a.IsAccountClosed {
		return "", ErrAccountClosed
	}
	if a.MobilePhoneNumber == "" {
		return "", ErrMobilePhoneMissing
	}

	code, err := newNumericCode(mobileCodeLength)
	if err != nil {
		return "", err
	}

	a.MobileCode = code
	sent := now
	a.MobileCodeSent = &sent
	a.touch(now)
	return code, nil
}

// VerifyTwoFactorAuthCode redeems a sign-in code. On success the failed-login
// counter resets and the login timestamp is stamped, mirroring a completed
// password authentication.
func (a *Account) VerifyTwoFactorAuthCode(code string, codeLifetime time.Duration, now time.Time) bool {
	if a.IsAccountClosed || !a.IsLoginAllowed {
		return false
	}
	if !a.isMobileCodeCurrent(code, codeLifetime, now) {
		return false
	}

	a.clearMobileCode()
	a.FailedLoginCount = 0
	last := now
	a.LastLogin = &last
	a.touch(now)
	return true
}

// CloseAccount disables the account. Closed accounts never authenticate; the
// operation is idempotent.
func (a *Account) CloseAccount(now time.Time) {
	if a.IsAccountClosed {
		return
	}

	a.IsAccountClosed = true
	closed := now
	a.AccountClosed = &closed
	a.IsLoginAllowed = false
	a.clearVerificationKey()
	a.clearMobileCode()
	a.TwoFactorAuthTokens = nil
	a.touch(now)
}

// ReopenAccount reverses a close.
func (a *Account) ReopenAccount(now time.Time) error {
	if !a.IsAccountClosed {
		return ErrAccountNotClosed
	}

	a.IsAccountClosed = false
	a.AccountClosed = nil
	a.IsLoginAllowed = true
	a.touch(now)
	return nil
}

func (a *Account) isMobileCodeCurrent(code string, lifetime time.Duration, now time.Time) bool {
	if code == "" || a.MobileCode == "" || a.MobileCode != code {
		return false
	}
	if a.MobileCodeSent == nil || now.Sub(*a.MobileCodeSent) > lifetime {
		return false
	}
	return true
}

func (a *Account) clearMobileCode() {
	a.MobileCode = ""
	a.MobileCodeSent = nil
	a.PendingMobilePhone = ""
}
