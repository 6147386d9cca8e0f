// Package notify turns account lifecycle events into outbound messages.
// Handlers subscribe on the event bus and hand messages to a
// port.MessageDelivery transport. Delivery failures are logged and swallowed:
// a dead SMTP relay must not roll back or abort the state change that raised
// the event.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-accounts/internal/bus"
	"github.com/arklim/social-platform-accounts/internal/core/domain"
	"github.com/arklim/social-platform-accounts/internal/core/port"
	"github.com/arklim/social-platform-accounts/internal/infra/logger"
)

// LogDelivery writes messages to the log instead of an external gateway.
// Development default; production hosts plug in their own transport.
type LogDelivery struct {
	logger *zap.Logger
}

// NewLogDelivery constructs a log-backed transport.
func NewLogDelivery(log *zap.Logger) *LogDelivery {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogDelivery{logger: log}
}

func (d *LogDelivery) Send(_ context.Context, msg port.Message) error {
	d.logger.Info("Message delivery (log transport)",
		zap.String("to", logger.MaskString(msg.To)),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

var _ port.MessageDelivery = (*LogDelivery)(nil)

// Mailer sends account emails.
type Mailer struct {
	delivery port.MessageDelivery
	logger   *zap.Logger
	appName  string
}

// NewMailer constructs a mailer. appName is used in subjects.
func NewMailer(delivery port.MessageDelivery, appName string, log *zap.Logger) *Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	if appName == "" {
		appName = "accounts"
	}
	return &Mailer{delivery: delivery, logger: log, appName: appName}
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	if m.delivery == nil || to == "" {
		return nil
	}

	err := m.delivery.Send(ctx, port.Message{To: to, Subject: subject, Body: body})
	if err != nil {
		m.logger.Warn("Email delivery failed",
			zap.String("to", logger.MaskEmail(to)),
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
	return nil
}

// Attach subscribes the mailer to the events that carry mail-worthy changes.
func (m *Mailer) Attach(events *bus.EventBus) {
	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.AccountCreatedEvent) error {
		if evt.Account == nil {
			return nil
		}
		if evt.VerificationKey == "" {
			return m.send(ctx, evt.Account.Email,
				fmt.Sprintf("[%s] Your account was created", m.appName),
				fmt.Sprintf("Your account %q is ready to use.", evt.Account.Username))
		}
		return m.send(ctx, evt.Account.Email,
			fmt.Sprintf("[%s] Confirm your account", m.appName),
			fmt.Sprintf("Use this key to confirm your account: %s", evt.VerificationKey))
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.AccountVerifiedEvent) error {
		if evt.Account == nil {
			return nil
		}
		return m.send(ctx, evt.Account.Email,
			fmt.Sprintf("[%s] Account confirmed", m.appName),
			"Your account has been confirmed. You can now sign in.")
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.PasswordResetRequestedEvent) error {
		if evt.Account == nil {
			return nil
		}
		return m.send(ctx, evt.Account.Email,
			fmt.Sprintf("[%s] Password reset requested", m.appName),
			fmt.Sprintf("Use this key to choose a new password: %s\nIf you did not request this, ignore this message.", evt.VerificationKey))
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.PasswordChangedEvent) error {
		if evt.Account == nil {
			return nil
		}
		return m.send(ctx, evt.Account.Email,
			fmt.Sprintf("[%s] Password changed", m.appName),
			"Your password was changed. If this was not you, reset your password immediately.")
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.UsernameChangedEvent) error {
		if evt.Account == nil {
			return nil
		}
		return m.send(ctx, evt.Account.Email,
			fmt.Sprintf("[%s] Username changed", m.appName),
			fmt.Sprintf("Your username is now %q.", evt.Account.Username))
	})

	// The change-email key goes to the address being claimed, not the
	// current one. Possession of the inbox is the proof.
	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.EmailChangeRequestedEvent) error {
		return m.send(ctx, evt.NewEmail,
			fmt.Sprintf("[%s] Confirm your new email address", m.appName),
			fmt.Sprintf("Use this key to confirm your new address: %s", evt.VerificationKey))
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.EmailChangedEvent) error {
		if evt.Account == nil {
			return nil
		}
		return m.send(ctx, evt.Account.Email,
			fmt.Sprintf("[%s] Email address changed", m.appName),
			"The email address on your account was updated.")
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.AccountClosedEvent) error {
		if evt.Account == nil {
			return nil
		}
		return m.send(ctx, evt.Account.Email,
			fmt.Sprintf("[%s] Account closed", m.appName),
			"Your account has been closed.")
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.AccountReopenedEvent) error {
		if evt.Account == nil {
			return nil
		}
		return m.send(ctx, evt.Account.Email,
			fmt.Sprintf("[%s] Account reopened", m.appName),
			"Your account has been reopened. You can sign in again.")
	})
}

// Texter sends SMS codes.
type Texter struct {
	delivery port.MessageDelivery
	logger   *zap.Logger
}

// NewTexter constructs an SMS sender.
func NewTexter(delivery port.MessageDelivery, log *zap.Logger) *Texter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Texter{delivery: delivery, logger: log}
}

func (t *Texter) send(ctx context.Context, to, body string) error {
	if t.delivery == nil || to == "" {
		return nil
	}

	err := t.delivery.Send(ctx, port.Message{To: to, Body: body})
	if err != nil {
		t.logger.Warn("SMS delivery failed",
			zap.String("to", logger.MaskPhone(to)),
			zap.Error(err),
		)
	}
	return nil
}

// Attach subscribes the texter to the events that carry a code for a phone.
func (t *Texter) Attach(events *bus.EventBus) {
	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.MobileChangeRequestedEvent) error {
		return t.send(ctx, evt.NewPhone, fmt.Sprintf("Your confirmation code is %s", evt.Code))
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.TwoFactorAuthCodeNotificationEvent) error {
		if evt.Account == nil {
			return nil
		}
		return t.send(ctx, evt.Account.MobilePhoneNumber, fmt.Sprintf("Your sign-in code is %s", evt.Code))
	})
}
