package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-accounts/internal/bus"
	"github.com/arklim/social-platform-accounts/internal/core/domain"
	"github.com/arklim/social-platform-accounts/internal/core/port"
)

type fakeDelivery struct {
	sent []port.Message
	err  error
}

func (f *fakeDelivery) Send(_ context.Context, msg port.Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func notifyAccount() *domain.Account {
	return &domain.Account{
		ID:                uuid.New(),
		Tenant:            "default",
		Username:          "alice",
		Email:             "alice@example.com",
		MobilePhoneNumber: "+12025550147",
	}
}

func TestMailerSendsVerificationKeyOnCreate(t *testing.T) {
	delivery := &fakeDelivery{}
	events := bus.NewEventBus()
	NewMailer(delivery, "social", zap.NewNop()).Attach(events)

	err := events.Raise(context.Background(), domain.AccountCreatedEvent{
		EventID:         domain.NewEventID(),
		Account:         notifyAccount(),
		VerificationKey: "confirm-key-1",
	})
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	if len(delivery.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(delivery.sent))
	}
	msg := delivery.sent[0]
	if msg.To != "alice@example.com" {
		t.Fatalf("to = %q", msg.To)
	}
	if !strings.Contains(msg.Body, "confirm-key-1") {
		t.Fatalf("body missing key: %q", msg.Body)
	}
	if !strings.Contains(msg.Subject, "social") {
		t.Fatalf("subject missing app name: %q", msg.Subject)
	}
}

func TestMailerAddressesChangeEmailKeyToNewAddress(t *testing.T) {
	delivery := &fakeDelivery{}
	events := bus.NewEventBus()
	NewMailer(delivery, "social", zap.NewNop()).Attach(events)

	err := events.Raise(context.Background(), domain.EmailChangeRequestedEvent{
		EventID:         domain.NewEventID(),
		Account:         notifyAccount(),
		NewEmail:        "alice.next@example.com",
		VerificationKey: "change-key-1",
	})
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	if len(delivery.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(delivery.sent))
	}
	if delivery.sent[0].To != "alice.next@example.com" {
		t.Fatalf("to = %q, want pending address", delivery.sent[0].To)
	}
}

func TestMailerSwallowsDeliveryFailure(t *testing.T) {
	delivery := &fakeDelivery{err: errors.New("smtp down")}
	events := bus.NewEventBus()
	NewMailer(delivery, "social", zap.NewNop()).Attach(events)

	err := events.Raise(context.Background(), domain.PasswordChangedEvent{
		EventID: domain.NewEventID(),
		Account: notifyAccount(),
	})
	if err != nil {
		t.Fatalf("delivery failure must not propagate, got %v", err)
	}
}

func TestTexterSendsSignInCode(t *testing.T) {
	delivery := &fakeDelivery{}
	events := bus.NewEventBus()
	NewTexter(delivery, zap.NewNop()).Attach(events)

	err := events.Raise(context.Background(), domain.TwoFactorAuthCodeNotificationEvent{
		EventID: domain.NewEventID(),
		Account: notifyAccount(),
		Code:    "654321",
	})
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	if len(delivery.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(delivery.sent))
	}
	msg := delivery.sent[0]
	if msg.To != "+12025550147" {
		t.Fatalf("to = %q", msg.To)
	}
	if !strings.Contains(msg.Body, "654321") {
		t.Fatalf("body missing code: %q", msg.Body)
	}
}

func TestTexterSendsMobileChangeCodeToNewNumber(t *testing.T) {
	delivery := &fakeDelivery{}
	events := bus.NewEventBus()
	NewTexter(delivery, zap.NewNop()).Attach(events)

	err := events.Raise(context.Background(), domain.MobileChangeRequestedEvent{
		EventID:  domain.NewEventID(),
		Account:  notifyAccount(),
		NewPhone: "+12025550199",
		Code:     "111222",
	})
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	if len(delivery.sent) != 1 || delivery.sent[0].To != "+12025550199" {
		t.Fatalf("messages = %+v, want single message to new number", delivery.sent)
	}
}
