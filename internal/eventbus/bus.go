// Package eventbus provides the in-process publish/subscribe fabric that
// connects the coupon issuer, the workflow executor, the order manager, and
// the observers.
//
// Dispatch is synchronous and single-threaded from the publisher's point of
// view: Publish invokes every subscribed handler on the calling goroutine, in
// registration order, before returning. There is no persistence or replay;
// an event published before a component subscribes is lost, which is fine
// because all components register at process startup.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Event is the envelope carried on the bus. Type doubles as the topic name.
type Event struct {
	// Type identifies the topic, e.g. "OrderProcessor.WorkflowStarted".
	Type string
	// Source names the emitting subsystem.
	Source string
	// Time is the emission timestamp.
	Time time.Time
	// Detail is the typed payload; subscribers assert it to the detail
	// struct matching the topic.
	Detail any
}

// Handler consumes one event. A handler that panics is recovered and logged;
// it never blocks other handlers or rolls back the state transition that
// produced the event.
type Handler func(ctx context.Context, evt Event)

// Bus is an explicitly constructed pub/sub registry. Components receive it by
// dependency injection, so tests can use isolated instances.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers h for the given topic. Handlers run in registration
// order on every publish.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers evt to every handler subscribed to evt.Type, at most once
// each. Handler failures are isolated: a panic is logged via the context
// logger and the remaining handlers still run.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	b.mu.RLock()
	hs := b.handlers[evt.Type]
	b.mu.RUnlock()

	for _, h := range hs {
		b.dispatch(ctx, h, evt)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			zctx.From(ctx).Error("event handler panicked",
				zap.String("topic", evt.Type),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
		}
	}()
	h(ctx, evt)
}
