package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

// DeviceTokenIssuer mints and checks signed remembered-device tokens for the
// two-factor policy. The token binds the account to a fingerprint of its
// current password hash, so a password change silently invalidates every
// remembered device.
type DeviceTokenIssuer struct {
	signingKey []byte
	lifetime   time.Duration
	now        func() time.Time
}

// NewDeviceTokenIssuer constructs an issuer. nowFn may be nil for the system
// clock.
func NewDeviceTokenIssuer(signingKey []byte, lifetime time.Duration, nowFn func() time.Time) (*DeviceTokenIssuer, error) {
	if len(signingKey) < 32 {
		return nil, fmt.Errorf("device token signing key must be at least 32 bytes")
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("device token lifetime must be positive")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &DeviceTokenIssuer{signingKey: signingKey, lifetime: lifetime, now: nowFn}, nil
}

type deviceClaims struct {
	Fingerprint string `json:"fpt"`
	jwt.RegisteredClaims
}

// Fingerprint derives the device-recognition digest from the account and its
// current password hash.
func (i *DeviceTokenIssuer) Fingerprint(accountID uuid.UUID, hashedPassword string) string {
	return HashToken(accountID.String() + ":" + hashedPassword)
}

// Issue signs a remembered-device token for the account's current credential.
func (i *DeviceTokenIssuer) Issue(accountID uuid.UUID, hashedPassword string) (string, error) {
	now := i.now().UTC()
	claims := deviceClaims{
		Fingerprint: i.Fingerprint(accountID, hashedPassword),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign device token: %w", err)
	}
	return signed, nil
}

// Matches reports whether the token is valid, unexpired, and bound to this
// account's current password hash.
func (i *DeviceTokenIssuer) Matches(token string, accountID uuid.UUID, hashedPassword string) bool {
	if token == "" {
		return false
	}

	claims := &deviceClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.signingKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now().UTC() }))
	if err != nil || parsed == nil || !parsed.Valid {
		return false
	}

	if claims.Subject != accountID.String() {
		return false
	}
	return claims.Fingerprint == i.Fingerprint(accountID, hashedPassword)
}

// Lifetime reports how long issued tokens stay valid.
func (i *DeviceTokenIssuer) Lifetime() time.Duration {
	return i.lifetime
}
