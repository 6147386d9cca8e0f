package domain

import (
	"time"

	uuid "github.com/google/uuid"
)

// Lifecycle events raised by the account service after state is persisted.
// Each carries the aggregate it concerns; handlers must treat the pointer as
// read-only.

// AccountCreatedEvent signals a new account. VerificationKey is set when the
// account still needs verification and is the raw key to embed in the
// confirmation message.
type AccountCreatedEvent struct {
	EventID         string
	Account         *Account
	VerificationKey string
	Occurred        time.Time
}

// AccountVerifiedEvent signals a successful registration confirmation.
type AccountVerifiedEvent struct {
	EventID  string
	Account  *Account
	Occurred time.Time
}

// PasswordChangedEvent signals the credential changed, whether via the old
// password or a reset key.
type PasswordChangedEvent struct {
	EventID  string
	Account  *Account
	Occurred time.Time
}

// PasswordResetRequestedEvent carries the raw reset key for delivery.
type PasswordResetRequestedEvent struct {
	EventID         string
	Account         *Account
	VerificationKey string
	Occurred        time.Time
}

// UsernameChangedEvent signals a rename. NameID is unchanged.
type UsernameChangedEvent struct {
	EventID     string
	Account     *Account
	OldUsername string
	Occurred    time.Time
}

// EmailChangeRequestedEvent carries the raw change-email key for delivery to
// the new address.
type EmailChangeRequestedEvent struct {
	EventID         string
	Account         *Account
	NewEmail        string
	VerificationKey string
	Occurred        time.Time
}

// EmailChangedEvent signals the pending address became active.
type EmailChangedEvent struct {
	EventID  string
	Account  *Account
	OldEmail string
	Occurred time.Time
}

// MobileChangeRequestedEvent carries the raw confirmation code for SMS
// delivery to the new number.
type MobileChangeRequestedEvent struct {
	EventID  string
	Account  *Account
	NewPhone string
	Code     string
	Occurred time.Time
}

// MobileChangedEvent signals the pending number became active.
type MobileChangedEvent struct {
	EventID  string
	Account  *Account
	Occurred time.Time
}

// SuccessfulLoginEvent signals a completed authentication.
type SuccessfulLoginEvent struct {
	EventID  string
	Account  *Account
	Occurred time.Time
}

// FailedLoginEvent signals a rejected authentication attempt.
type FailedLoginEvent struct {
	EventID  string
	Account  *Account
	Result   AuthResult
	Occurred time.Time
}

// TooManyRecentPasswordFailuresEvent signals the account is inside its
// lockout window and attempts are being denied without a password check.
type TooManyRecentPasswordFailuresEvent struct {
	EventID  string
	Account  *Account
	Occurred time.Time
}

// TwoFactorAuthCodeNotificationEvent carries a sign-in code for delivery to
// the account's mobile number.
type TwoFactorAuthCodeNotificationEvent struct {
	EventID  string
	Account  *Account
	Code     string
	Occurred time.Time
}

// AccountClosedEvent signals the account was disabled.
type AccountClosedEvent struct {
	EventID  string
	Account  *Account
	Occurred time.Time
}

// AccountReopenedEvent signals a close was reversed.
type AccountReopenedEvent struct {
	EventID  string
	Account  *Account
	Occurred time.Time
}

// AccountRemovedEvent signals a hard delete.
type AccountRemovedEvent struct {
	EventID  string
	Account  *Account
	Occurred time.Time
}

// ClaimAddedEvent signals a claim mutation.
type ClaimAddedEvent struct {
	EventID  string
	Account  *Account
	Claim    Claim
	Occurred time.Time
}

// ClaimRemovedEvent signals a claim mutation.
type ClaimRemovedEvent struct {
	EventID  string
	Account  *Account
	Claim    Claim
	Occurred time.Time
}

// LinkedAccountAddedEvent signals an external identity was bound or updated.
type LinkedAccountAddedEvent struct {
	EventID           string
	Account           *Account
	ProviderName      string
	ProviderAccountID string
	Occurred          time.Time
}

// LinkedAccountRemovedEvent signals an external identity was unbound.
type LinkedAccountRemovedEvent struct {
	EventID           string
	Account           *Account
	ProviderName      string
	ProviderAccountID string
	Occurred          time.Time
}

// CertificateAddedEvent signals a certificate thumbprint was bound.
type CertificateAddedEvent struct {
	EventID    string
	Account    *Account
	Thumbprint string
	Occurred   time.Time
}

// CertificateRemovedEvent signals a certificate thumbprint was unbound.
type CertificateRemovedEvent struct {
	EventID    string
	Account    *Account
	Thumbprint string
	Occurred   time.Time
}

// NewEventID returns a unique identifier for an event payload.
func NewEventID() string {
	return uuid.NewString()
}
