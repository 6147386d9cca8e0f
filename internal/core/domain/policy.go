package domain

import "time"

// SecurityPolicy collects the account-security knobs that shape aggregate
// behavior. It is built once from configuration and passed explicitly into
// the service; there is no process-wide instance.
type SecurityPolicy struct {
	// MultiTenant enables tenant partitioning. When false every operation
	// runs under DefaultTenant regardless of the caller-supplied value.
	MultiTenant   bool
	DefaultTenant string
	// UsernamesUniqueAcrossTenants forces global username uniqueness even in
	// multi-tenant mode.
	UsernamesUniqueAcrossTenants bool
	// EmailIsUsername requires the username to equal the email address.
	EmailIsUsername bool

	RequireAccountVerification     bool
	AllowLoginAfterAccountCreation bool
	AllowAccountDeletion           bool

	AccountLockoutFailedLoginAttempts int
	AccountLockoutDuration            time.Duration

	// PasswordHashingIterationCount <= 0 means derive from the calendar year.
	PasswordHashingIterationCount int

	// VerificationKeyLifetime bounds how long verification and reset keys
	// stay usable; a key older than this is stale even if it matches.
	VerificationKeyLifetime time.Duration
	// TwoFactorCodeLifetime bounds mobile two-factor codes.
	TwoFactorCodeLifetime time.Duration
	// RememberedDeviceLifetime bounds "remember this device" grants.
	RememberedDeviceLifetime time.Duration
}

// DefaultSecurityPolicy returns the policy used when configuration supplies
// no overrides.
func DefaultSecurityPolicy() SecurityPolicy {
	return SecurityPolicy{
		MultiTenant:                       false,
		DefaultTenant:                     "default",
		RequireAccountVerification:        true,
		AllowLoginAfterAccountCreation:    true,
		AllowAccountDeletion:              false,
		AccountLockoutFailedLoginAttempts: 5,
		AccountLockoutDuration:            5 * time.Minute,
		VerificationKeyLifetime:           24 * time.Hour,
		TwoFactorCodeLifetime:             20 * time.Minute,
		RememberedDeviceLifetime:          30 * 24 * time.Hour,
	}
}

// Tenant applies the tenant-resolution rule to a caller-supplied tenant.
func (p SecurityPolicy) Tenant(tenant string) string {
	if !p.MultiTenant || tenant == "" {
		return p.DefaultTenant
	}
	return tenant
}
