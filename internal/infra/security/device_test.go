package security

import (
	"strings"
	"testing"
	"time"

	uuid "github.com/google/uuid"
)

var deviceTestKey = []byte(strings.Repeat("k", 32))

func TestDeviceTokenRoundTrip(t *testing.T) {
	issuer, err := NewDeviceTokenIssuer(deviceTestKey, 30*24*time.Hour, fixedClock(2024))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	accountID := uuid.New()
	token, err := issuer.Issue(accountID, "5000.somehash")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if !issuer.Matches(token, accountID, "5000.somehash") {
		t.Fatalf("expected token to match its account and credential")
	}
	if issuer.Matches(token, uuid.New(), "5000.somehash") {
		t.Fatalf("expected token bound to a different account to be rejected")
	}
}

func TestDeviceTokenInvalidatedByPasswordChange(t *testing.T) {
	issuer, err := NewDeviceTokenIssuer(deviceTestKey, 30*24*time.Hour, fixedClock(2024))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	accountID := uuid.New()
	token, err := issuer.Issue(accountID, "5000.oldhash")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if issuer.Matches(token, accountID, "5000.newhash") {
		t.Fatalf("expected password change to invalidate remembered device")
	}
}

func TestDeviceTokenExpires(t *testing.T) {
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	current := now
	issuer, err := NewDeviceTokenIssuer(deviceTestKey, time.Hour, func() time.Time { return current })
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	accountID := uuid.New()
	token, err := issuer.Issue(accountID, "5000.hash")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	current = now.Add(2 * time.Hour)
	if issuer.Matches(token, accountID, "5000.hash") {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestDeviceTokenIssuerRejectsWeakKey(t *testing.T) {
	if _, err := NewDeviceTokenIssuer([]byte("short"), time.Hour, nil); err == nil {
		t.Fatalf("expected short signing key to be rejected")
	}
}

func TestDeviceTokenRejectsGarbage(t *testing.T) {
	issuer, err := NewDeviceTokenIssuer(deviceTestKey, time.Hour, fixedClock(2024))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	if issuer.Matches("not-a-token", uuid.New(), "5000.hash") {
		t.Fatalf("expected malformed token to be rejected")
	}
}
