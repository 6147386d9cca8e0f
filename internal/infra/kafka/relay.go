package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-accounts/internal/bus"
	"github.com/arklim/social-platform-accounts/internal/core/domain"
	"github.com/arklim/social-platform-accounts/internal/infra/config"
	"github.com/arklim/social-platform-accounts/internal/infra/logger"
)

const schemaVersion = "1.0"

// Relay forwards account lifecycle events from the in-process event bus to
// Kafka. Raw credentials never leave the process: verification keys, reset
// keys and sign-in codes are stripped from the published payloads, so
// downstream consumers see that something happened but can never replay it.
type Relay struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewRelay constructs a Kafka-backed event relay.
func NewRelay(producer *Producer, appCfg config.AppSettings, log *zap.Logger) *Relay {
	return &Relay{producer: producer, appCfg: appCfg, logger: log}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Tenant    string           `json:"tenant,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// accountRef is the account snapshot shared by every published payload.
type accountRef struct {
	AccountID string `json:"account_id"`
	Tenant    string `json:"tenant"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
}

func refOf(account *domain.Account) accountRef {
	if account == nil {
		return accountRef{}
	}
	return accountRef{
		AccountID: account.ID.String(),
		Tenant:    account.Tenant,
		Username:  account.Username,
		Email:     account.Email,
	}
}

func (r *Relay) publish(ctx context.Context, eventID, eventType string, account *domain.Account, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     r.appCfg.Name,
		"environment": r.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	ref := refOf(account)
	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		AccountID: ref.AccountID,
		Tenant:    ref.Tenant,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: r.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(ref.AccountID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case r.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach subscribes the relay to every lifecycle event the service raises.
// Handlers run synchronously inside the raising call; the producer input is
// buffered, so the only blocking case is a saturated broker connection.
func (r *Relay) Attach(events *bus.EventBus) {
	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.AccountCreatedEvent) error {
		payload := struct {
			accountRef
			Verified bool `json:"verified"`
		}{refOf(evt.Account), evt.Account != nil && evt.Account.IsAccountVerified}
		return r.publish(ctx, evt.EventID, "account.created", evt.Account, evt.Occurred, payload)
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.AccountVerifiedEvent) error {
		return r.publish(ctx, evt.EventID, "account.verified", evt.Account, evt.Occurred, refOf(evt.Account))
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.PasswordChangedEvent) error {
		return r.publish(ctx, evt.EventID, "account.password.changed", evt.Account, evt.Occurred, refOf(evt.Account))
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.PasswordResetRequestedEvent) error {
		return r.publish(ctx, evt.EventID, "account.password.reset_requested", evt.Account, evt.Occurred, refOf(evt.Account))
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.UsernameChangedEvent) error {
		payload := struct {
			accountRef
			OldUsername string `json:"old_username"`
		}{refOf(evt.Account), evt.OldUsername}
		return r.publish(ctx, evt.EventID, "account.username.changed", evt.Account, evt.Occurred, payload)
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.EmailChangeRequestedEvent) error {
		payload := struct {
			accountRef
			NewEmail string `json:"new_email"`
		}{refOf(evt.Account), evt.NewEmail}
		return r.publish(ctx, evt.EventID, "account.email.change_requested", evt.Account, evt.Occurred, payload)
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.EmailChangedEvent) error {
		payload := struct {
			accountRef
			OldEmail string `json:"old_email"`
		}{refOf(evt.Account), evt.OldEmail}
		return r.publish(ctx, evt.EventID, "account.email.changed", evt.Account, evt.Occurred, payload)
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.MobileChangeRequestedEvent) error {
		payload := struct {
			accountRef
			NewPhone string `json:"new_phone"`
		}{refOf(evt.Account), logger.MaskPhone(evt.NewPhone)}
		return r.publish(ctx, evt.EventID, "account.mobile.change_requested", evt.Account, evt.Occurred, payload)
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.MobileChangedEvent) error {
		return r.publish(ctx, evt.EventID, "account.mobile.changed", evt.Account, evt.Occurred, refOf(evt.Account))
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.SuccessfulLoginEvent) error {
		return r.publish(ctx, evt.EventID, "account.login.succeeded", evt.Account, evt.Occurred, refOf(evt.Account))
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.FailedLoginEvent) error {
		payload := struct {
			accountRef
			Reason string `json:"reason"`
		}{refOf(evt.Account), evt.Result.String()}
		return r.publish(ctx, evt.EventID, "account.login.failed", evt.Account, evt.Occurred, payload)
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.TooManyRecentPasswordFailuresEvent) error {
		return r.publish(ctx, evt.EventID, "account.login.locked_out", evt.Account, evt.Occurred, refOf(evt.Account))
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.AccountClosedEvent) error {
		return r.publish(ctx, evt.EventID, "account.closed", evt.Account, evt.Occurred, refOf(evt.Account))
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.AccountReopenedEvent) error {
		return r.publish(ctx, evt.EventID, "account.reopened", evt.Account, evt.Occurred, refOf(evt.Account))
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.AccountRemovedEvent) error {
		return r.publish(ctx, evt.EventID, "account.removed", evt.Account, evt.Occurred, refOf(evt.Account))
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.ClaimAddedEvent) error {
		payload := struct {
			accountRef
			ClaimType  string `json:"claim_type"`
			ClaimValue string `json:"claim_value"`
		}{refOf(evt.Account), evt.Claim.Type, evt.Claim.Value}
		return r.publish(ctx, evt.EventID, "account.claim.added", evt.Account, evt.Occurred, payload)
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.ClaimRemovedEvent) error {
		payload := struct {
			accountRef
			ClaimType  string `json:"claim_type"`
			ClaimValue string `json:"claim_value"`
		}{refOf(evt.Account), evt.Claim.Type, evt.Claim.Value}
		return r.publish(ctx, evt.EventID, "account.claim.removed", evt.Account, evt.Occurred, payload)
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.LinkedAccountAddedEvent) error {
		payload := struct {
			accountRef
			Provider          string `json:"provider"`
			ProviderAccountID string `json:"provider_account_id"`
		}{refOf(evt.Account), evt.ProviderName, evt.ProviderAccountID}
		return r.publish(ctx, evt.EventID, "account.linked_account.added", evt.Account, evt.Occurred, payload)
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.LinkedAccountRemovedEvent) error {
		payload := struct {
			accountRef
			Provider          string `json:"provider"`
			ProviderAccountID string `json:"provider_account_id"`
		}{refOf(evt.Account), evt.ProviderName, evt.ProviderAccountID}
		return r.publish(ctx, evt.EventID, "account.linked_account.removed", evt.Account, evt.Occurred, payload)
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.CertificateAddedEvent) error {
		payload := struct {
			accountRef
			Thumbprint string `json:"thumbprint"`
		}{refOf(evt.Account), evt.Thumbprint}
		return r.publish(ctx, evt.EventID, "account.certificate.added", evt.Account, evt.Occurred, payload)
	})

	bus.SubscribeEvent(events, func(ctx context.Context, evt domain.CertificateRemovedEvent) error {
		payload := struct {
			accountRef
			Thumbprint string `json:"thumbprint"`
		}{refOf(evt.Account), evt.Thumbprint}
		return r.publish(ctx, evt.EventID, "account.certificate.removed", evt.Account, evt.Occurred, payload)
	})
}
