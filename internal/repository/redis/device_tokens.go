package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"
)

const deviceTokenPrefix = "accounts:device:"

// DeviceTokenStore keeps remembered-device tokens in Redis with a TTL
// matching the remembered-device lifetime. It backs the server-side flavor
// of port.TwoFactorTokenStore; cookie-based hosts bring their own.
type DeviceTokenStore struct {
	client *red.Client
}

// NewDeviceTokenStore constructs a store over the given client.
func NewDeviceTokenStore(client *red.Client) *DeviceTokenStore {
	return &DeviceTokenStore{client: client}
}

// GetToken returns the value held under name. A missing or expired key is
// not an error, just an empty result.
func (s *DeviceTokenStore) GetToken(ctx context.Context, name string) (string, error) {
	stored, err := s.client.Get(ctx, deviceTokenPrefix+name).Result()
	if errors.Is(err, red.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get device token: %w", err)
	}
	return stored, nil
}

// IssueToken stores value under name until ttl elapses.
func (s *DeviceTokenStore) IssueToken(ctx context.Context, name, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("issue device token: ttl must be positive, got %s", ttl)
	}
	if err := s.client.Set(ctx, deviceTokenPrefix+name, value, ttl).Err(); err != nil {
		return fmt.Errorf("set device token: %w", err)
	}
	return nil
}

// RemoveToken clears the named slot. Removing an absent token is a no-op.
func (s *DeviceTokenStore) RemoveToken(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, deviceTokenPrefix+name).Err(); err != nil {
		return fmt.Errorf("delete device token: %w", err)
	}
	return nil
}
