package bus

import (
	"context"
	"errors"
	"testing"
)

type pingEvent struct{ n int }
type otherEvent struct{}

func TestEventBusDispatchesByRuntimeType(t *testing.T) {
	b := NewEventBus()

	var got []int
	SubscribeEvent(b, func(_ context.Context, evt pingEvent) error {
		got = append(got, evt.n)
		return nil
	})
	SubscribeEvent(b, func(_ context.Context, evt otherEvent) error {
		t.Fatalf("otherEvent handler must not run")
		return nil
	})

	// Raise through a shared interface reference; dispatch must still key on
	// the concrete type.
	var evt any = pingEvent{n: 7}
	if err := b.Raise(context.Background(), evt); err != nil {
		t.Fatalf("raise: %v", err)
	}

	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("expected single dispatch with n=7, got %v", got)
	}
}

func TestEventBusInvokesInRegistrationOrder(t *testing.T) {
	b := NewEventBus()

	var order []string
	SubscribeEvent(b, func(context.Context, pingEvent) error {
		order = append(order, "first")
		return nil
	})
	SubscribeEvent(b, func(context.Context, pingEvent) error {
		order = append(order, "second")
		return nil
	})

	if err := b.Raise(context.Background(), pingEvent{}); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected registration order, got %v", order)
	}
}

func TestEventBusHandlerErrorAbortsDispatch(t *testing.T) {
	b := NewEventBus()
	boom := errors.New("boom")

	SubscribeEvent(b, func(context.Context, pingEvent) error { return boom })
	ran := false
	SubscribeEvent(b, func(context.Context, pingEvent) error {
		ran = true
		return nil
	})

	err := b.Raise(context.Background(), pingEvent{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error to propagate, got %v", err)
	}
	if ran {
		t.Fatalf("expected dispatch to stop at the failing handler")
	}
}

func TestEventBusDropsUnsubscribedEvents(t *testing.T) {
	b := NewEventBus()
	if err := b.Raise(context.Background(), pingEvent{}); err != nil {
		t.Fatalf("expected unsubscribed event to be dropped, got %v", err)
	}
	if n := b.SubscriberCount(pingEvent{}); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestEventBusRepeatedRaiseStaysStable(t *testing.T) {
	b := NewEventBus()

	count := 0
	SubscribeEvent(b, func(context.Context, pingEvent) error {
		count++
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := b.Raise(context.Background(), pingEvent{n: i}); err != nil {
			t.Fatalf("raise %d: %v", i, err)
		}
	}
	if count != 3 {
		t.Fatalf("expected 3 dispatches, got %d", count)
	}
}

type fetchTokenCommand struct {
	Name  string
	Token string
}

func TestCommandBusMutatesCommand(t *testing.T) {
	b := NewCommandBus()

	SubscribeCommand(b, func(_ context.Context, cmd *fetchTokenCommand) error {
		cmd.Token = "token-for-" + cmd.Name
		return nil
	})

	cmd := &fetchTokenCommand{Name: "device1"}
	if err := b.Execute(context.Background(), cmd); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if cmd.Token != "token-for-device1" {
		t.Fatalf("expected handler to fill token, got %q", cmd.Token)
	}
}

func TestCommandBusNoHandlerIsNoop(t *testing.T) {
	b := NewCommandBus()

	cmd := &fetchTokenCommand{Name: "device1"}
	if err := b.Execute(context.Background(), cmd); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if cmd.Token != "" {
		t.Fatalf("expected command untouched, got %q", cmd.Token)
	}
}

func TestCommandBusHandlerErrorPropagates(t *testing.T) {
	b := NewCommandBus()
	boom := errors.New("boom")

	SubscribeCommand(b, func(context.Context, *fetchTokenCommand) error { return boom })

	if err := b.Execute(context.Background(), &fetchTokenCommand{}); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}
