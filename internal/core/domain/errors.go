package domain

import "errors"

// ValidationError reports a user-correctable violation of account rules.
// The message is safe to surface to the end user.
type ValidationError struct {
	msg string
}

// NewValidationError constructs a ValidationError with the supplied message.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.msg
}

// IsValidation reports whether err (or anything it wraps) is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var (
	// ErrUsernameRequired indicates the username was empty.
	ErrUsernameRequired = NewValidationError("username is required")
	// ErrUsernameMustBeEmail indicates the username does not match the email in email-as-username mode.
	ErrUsernameMustBeEmail = NewValidationError("username must be a valid email address")
	// ErrPasswordRequired indicates the password was empty.
	ErrPasswordRequired = NewValidationError("password is required")
	// ErrEmailRequired indicates the email address was empty.
	ErrEmailRequired = NewValidationError("email is required")
	// ErrInvalidEmail indicates the email address is malformed.
	ErrInvalidEmail = NewValidationError("email is invalid")
	// ErrInvalidOldPassword indicates the current password did not match during a password change.
	ErrInvalidOldPassword = NewValidationError("invalid old password")
	// ErrUsernameAlreadyInUse indicates another account in the tenant owns the username.
	ErrUsernameAlreadyInUse = NewValidationError("username is already in use")
	// ErrEmailAlreadyInUse indicates another account in the tenant owns the email address.
	ErrEmailAlreadyInUse = NewValidationError("email is already in use")
	// ErrAccountClosed indicates the operation is not permitted on a closed account.
	ErrAccountClosed = NewValidationError("account is closed")
	// ErrAccountNotClosed indicates reopen was requested for an account that is not closed.
	ErrAccountNotClosed = NewValidationError("account is not closed")
	// ErrAccountNotFound indicates no account matched the supplied identifier.
	ErrAccountNotFound = NewValidationError("account not found")
	// ErrClaimTypeRequired indicates a claim mutation was attempted with an empty type.
	ErrClaimTypeRequired = NewValidationError("claim type is required")
	// ErrClaimValueRequired indicates a claim mutation was attempted with an empty value.
	ErrClaimValueRequired = NewValidationError("claim value is required")
	// ErrProviderRequired indicates a linked-account mutation was attempted with an empty provider name.
	ErrProviderRequired = NewValidationError("provider name is required")
	// ErrProviderAccountIDRequired indicates a linked-account mutation was attempted with an empty provider account id.
	ErrProviderAccountIDRequired = NewValidationError("provider account id is required")
	// ErrThumbprintRequired indicates a certificate mutation was attempted with an empty thumbprint.
	ErrThumbprintRequired = NewValidationError("certificate thumbprint is required")
	// ErrMobilePhoneRequired indicates a mobile change was attempted with an empty phone number.
	ErrMobilePhoneRequired = NewValidationError("mobile phone number is required")
	// ErrMobilePhoneMissing indicates a mobile two-factor code was requested without a registered phone.
	ErrMobilePhoneMissing = NewValidationError("no mobile phone number is registered for the account")
	// ErrUsernameChangeViaEmail indicates the username cannot change directly in email-as-username mode.
	ErrUsernameChangeViaEmail = NewValidationError("username is the email address and must be changed via an email change")
)
