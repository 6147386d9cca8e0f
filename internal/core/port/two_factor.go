package port

import (
	"context"
	"time"
)

// TwoFactorTokenStore abstracts wherever the host keeps remembered-device
// tokens: an HTTP cookie jar, a mobile app's secure storage, or a server-side
// store keyed by device. Validation of the token itself happens elsewhere;
// the store only holds and returns opaque values.
type TwoFactorTokenStore interface {
	// GetToken returns the value held under name, or "" when the slot is
	// empty or expired.
	GetToken(ctx context.Context, name string) (string, error)
	// IssueToken stores value under name until ttl elapses.
	IssueToken(ctx context.Context, name, value string, ttl time.Duration) error
	// RemoveToken clears the named slot.
	RemoveToken(ctx context.Context, name string) error
}
