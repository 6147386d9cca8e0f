// Package bus provides the in-process, synchronous event and command
// dispatch that decouples the account service from its side effects.
// Dispatch keys on the runtime type of the value being raised, so events
// published through a shared interface reference still reach the handlers
// registered for their concrete type.
package bus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

type handler func(ctx context.Context, v any) error

// EventBus routes events to subscribers of their concrete type. Handlers run
// synchronously in registration order; the first handler error aborts the
// remaining dispatch and propagates to the caller.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]handler
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[reflect.Type][]handler)}
}

// SubscribeEvent registers fn for events of concrete type T.
func SubscribeEvent[T any](b *EventBus, fn func(ctx context.Context, evt T) error) {
	if b == nil || fn == nil {
		return
	}

	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], func(ctx context.Context, v any) error {
		return fn(ctx, v.(T))
	})
}

// Raise dispatches each event to the handlers registered for its runtime
// type. Events with no subscribers are dropped silently.
func (b *EventBus) Raise(ctx context.Context, events ...any) error {
	for _, evt := range events {
		if evt == nil {
			continue
		}
		if err := b.dispatch(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (b *EventBus) dispatch(ctx context.Context, evt any) error {
	b.mu.RLock()
	hs := b.handlers[reflect.TypeOf(evt)]
	b.mu.RUnlock()

	for _, h := range hs {
		if err := h(ctx, evt); err != nil {
			return fmt.Errorf("dispatch %T: %w", evt, err)
		}
	}
	return nil
}

// SubscriberCount reports how many handlers are registered for the concrete
// type of evt.
func (b *EventBus) SubscriberCount(evt any) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[reflect.TypeOf(evt)])
}

// CommandBus routes commands to their handlers. Commands are passed by
// pointer so handlers can write results back into them; this is the only
// difference from the event bus.
type CommandBus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]handler
}

// NewCommandBus returns an empty bus.
func NewCommandBus() *CommandBus {
	return &CommandBus{handlers: make(map[reflect.Type][]handler)}
}

// SubscribeCommand registers fn for commands of type *T.
func SubscribeCommand[T any](b *CommandBus, fn func(ctx context.Context, cmd *T) error) {
	if b == nil || fn == nil {
		return
	}

	t := reflect.TypeOf((*T)(nil))
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], func(ctx context.Context, v any) error {
		return fn(ctx, v.(*T))
	})
}

// Execute dispatches cmd (a pointer) to its handlers in registration order.
// Commands with no handler no-op, leaving the command unmodified.
func (b *CommandBus) Execute(ctx context.Context, cmd any) error {
	if cmd == nil {
		return nil
	}

	b.mu.RLock()
	hs := b.handlers[reflect.TypeOf(cmd)]
	b.mu.RUnlock()

	for _, h := range hs {
		if err := h(ctx, cmd); err != nil {
			return fmt.Errorf("execute %T: %w", cmd, err)
		}
	}
	return nil
}
