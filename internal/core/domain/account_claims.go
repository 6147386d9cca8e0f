package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
)

const mobileCodeLength = 6

// Claim is an arbitrary (type, value) authorization attribute.
type Claim struct {
	Type  string
	Value string
}

// LinkedAccount binds the account to an external identity provider.
type LinkedAccount struct {
	ProviderName      string
	ProviderAccountID string
	LastLogin         time.Time
	Claims            []Claim
}

// Certificate binds an X.509 thumbprint for certificate authentication.
type Certificate struct {
	Thumbprint string
	Subject    string
}

// TwoFactorAuthToken is a server-side remembered-device grant, stored hashed.
type TwoFactorAuthToken struct {
	Token  string
	Issued time.Time
}

// PasswordResetSecret is a question/answer pair gating password resets.
type PasswordResetSecret struct {
	ID       uuid.UUID
	Question string
	Answer   string
}

// AddClaim sets the claim of the given type, replacing any existing claims of
// that type. Use AddClaimValue for multi-value semantics.
func (a *Account) AddClaim(claimType, value string, now time.Time) error {
	if err := validateClaim(claimType, value); err != nil {
		return err
	}

	kept := a.Claims[:0]
	for _, c := range a.Claims {
		if c.Type != claimType {
			kept = append(kept, c)
		}
	}
	a.Claims = append(kept, Claim{Type: claimType, Value: value})
	a.touch(now)
	return nil
}

// AddClaimValue appends a claim, keeping any existing claims of the same type
// with different values. Duplicate (type, value) pairs are collapsed.
func (a *Account) AddClaimValue(claimType, value string, now time.Time) error {
	if err := validateClaim(claimType, value); err != nil {
		return err
	}

	if a.HasClaim(claimType, value) {
		return nil
	}
	a.Claims = append(a.Claims, Claim{Type: claimType, Value: value})
	a.touch(now)
	return nil
}

// RemoveClaim drops every claim of the given type.
func (a *Account) RemoveClaim(claimType string, now time.Time) error {
	if strings.TrimSpace(claimType) == "" {
		return ErrClaimTypeRequired
	}

	kept := a.Claims[:0]
	for _, c := range a.Claims {
		if c.Type != claimType {
			kept = append(kept, c)
		}
	}
	a.Claims = kept
	a.touch(now)
	return nil
}

// RemoveClaimValue drops the single claim matching both type and value.
func (a *Account) RemoveClaimValue(claimType, value string, now time.Time) error {
	if err := validateClaim(claimType, value); err != nil {
		return err
	}

	kept := a.Claims[:0]
	for _, c := range a.Claims {
		if c.Type != claimType || c.Value != value {
			kept = append(kept, c)
		}
	}
	a.Claims = kept
	a.touch(now)
	return nil
}

// HasClaim reports whether the exact (type, value) pair is present.
func (a *Account) HasClaim(claimType, value string) bool {
	for _, c := range a.Claims {
		if c.Type == claimType && c.Value == value {
			return true
		}
	}
	return false
}

// ClaimValues returns every value held for the claim type.
func (a *Account) ClaimValues(claimType string) []string {
	var values []string
	for _, c := range a.Claims {
		if c.Type == claimType {
			values = append(values, c.Value)
		}
	}
	return values
}

// AddOrUpdateLinkedAccount binds an external identity, replacing the claim
// set and stamping the link's last login when it already exists.
func (a *Account) AddOrUpdateLinkedAccount(provider, providerAccountID string, claims []Claim, now time.Time) error {
	if a.IsAccountClosed {
		return ErrAccountClosed
	}
	if strings.TrimSpace(provider) == "" {
		return ErrProviderRequired
	}
	if strings.TrimSpace(providerAccountID) == "" {
		return ErrProviderAccountIDRequired
	}

	for i := range a.LinkedAccounts {
		link := &a.LinkedAccounts[i]
		if link.ProviderName == provider && link.ProviderAccountID == providerAccountID {
			link.LastLogin = now
			link.Claims = append([]Claim(nil), claims...)
			a.touch(now)
			return nil
		}
	}

	a.LinkedAccounts = append(a.LinkedAccounts, LinkedAccount{
		ProviderName:      provider,
		ProviderAccountID: providerAccountID,
		LastLogin:         now,
		Claims:            append([]Claim(nil), claims...),
	})
	a.touch(now)
	return nil
}

// RemoveLinkedAccount unbinds an external identity. Missing links no-op.
func (a *Account) RemoveLinkedAccount(provider, providerAccountID string, now time.Time) {
	kept := a.LinkedAccounts[:0]
	for _, link := range a.LinkedAccounts {
		if link.ProviderName != provider || link.ProviderAccountID != providerAccountID {
			kept = append(kept, link)
		}
	}
	a.LinkedAccounts = kept
	a.touch(now)
}

// GetLinkedAccount returns the link for (provider, providerAccountID), or nil.
func (a *Account) GetLinkedAccount(provider, providerAccountID string) *LinkedAccount {
	for i := range a.LinkedAccounts {
		link := &a.LinkedAccounts[i]
		if link.ProviderName == provider && link.ProviderAccountID == providerAccountID {
			return link
		}
	}
	return nil
}

// AddCertificate binds an X.509 thumbprint, replacing an existing binding
// with the same thumbprint.
func (a *Account) AddCertificate(thumbprint, subject string, now time.Time) error {
	if a.IsAccountClosed {
		return ErrAccountClosed
	}
	thumbprint = strings.TrimSpace(thumbprint)
	if thumbprint == "" {
		return ErrThumbprintRequired
	}

	for i := range a.Certificates {
		if a.Certificates[i].Thumbprint == thumbprint {
			a.Certificates[i].Subject = subject
			a.touch(now)
			return nil
		}
	}
	a.Certificates = append(a.Certificates, Certificate{Thumbprint: thumbprint, Subject: subject})
	a.touch(now)
	return nil
}

// RemoveCertificate unbinds a thumbprint. Missing bindings no-op.
func (a *Account) RemoveCertificate(thumbprint string, now time.Time) {
	kept := a.Certificates[:0]
	for _, cert := range a.Certificates {
		if cert.Thumbprint != thumbprint {
			kept = append(kept, cert)
		}
	}
	a.Certificates = kept
	a.touch(now)
}

// HasCertificate reports whether the thumbprint is bound.
func (a *Account) HasCertificate(thumbprint string) bool {
	for _, cert := range a.Certificates {
		if cert.Thumbprint == thumbprint {
			return true
		}
	}
	return false
}

// AddTwoFactorAuthToken records a hashed remembered-device grant.
func (a *Account) AddTwoFactorAuthToken(hashedToken string, now time.Time) {
	if hashedToken == "" {
		return
	}
	a.TwoFactorAuthTokens = append(a.TwoFactorAuthTokens, TwoFactorAuthToken{Token: hashedToken, Issued: now})
	a.touch(now)
}

// HasTwoFactorAuthToken reports whether the hashed grant is present and
// within its lifetime.
func (a *Account) HasTwoFactorAuthToken(hashedToken string, lifetime time.Duration, now time.Time) bool {
	for _, t := range a.TwoFactorAuthTokens {
		if t.Token == hashedToken && now.Sub(t.Issued) <= lifetime {
			return true
		}
	}
	return false
}

// AddPasswordResetSecret records a question/answer pair.
func (a *Account) AddPasswordResetSecret(question, answer string, now time.Time) (uuid.UUID, error) {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return uuid.Nil, NewValidationError("secret question and answer are required")
	}

	secret := PasswordResetSecret{ID: uuid.New(), Question: question, Answer: answer}
	a.PasswordResetSecrets = append(a.PasswordResetSecrets, secret)
	a.touch(now)
	return secret.ID, nil
}

// RemovePasswordResetSecret drops a question/answer pair by id.
func (a *Account) RemovePasswordResetSecret(id uuid.UUID, now time.Time) {
	kept := a.PasswordResetSecrets[:0]
	for _, secret := range a.PasswordResetSecrets {
		if secret.ID != id {
			kept = append(kept, secret)
		}
	}
	a.PasswordResetSecrets = kept
	a.touch(now)
}

func validateClaim(claimType, value string) error {
	if strings.TrimSpace(claimType) == "" {
		return ErrClaimTypeRequired
	}
	if strings.TrimSpace(value) == "" {
		return ErrClaimValueRequired
	}
	return nil
}

// newNumericCode draws a short decimal code from crypto/rand.
func newNumericCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	digits := make([]byte, length)
	for i, b := range buf {
		digits[i] = '0' + (b % 10)
	}
	return string(digits), nil
}
