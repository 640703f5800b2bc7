// Package publisher forwards every lifecycle event to an external
// notification channel, keyed by event or user. It is a pure observer: it
// holds no state and its failures never affect the order state machine.
package publisher

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/presso/internal/eventbus"
)

// Sink delivers one notification to an external channel. Implementations
// could push over WebSocket or a message broker; the default sink logs.
type Sink interface {
	Publish(ctx context.Context, topic string, evt eventbus.Event) error
}

// ZapSink is the default Sink: it renders each notification to the context
// logger.
type ZapSink struct{}

// Publish logs the notification.
func (ZapSink) Publish(ctx context.Context, topic string, evt eventbus.Event) error {
	zctx.From(ctx).Info("notification",
		zap.String("topic", topic),
		zap.String("type", evt.Type),
		zap.Any("detail", evt.Detail),
	)
	return nil
}

// adminTopics are forwarded to the per-event admin channel.
var adminTopics = []string{
	eventbus.TopicNewOrder,
	eventbus.TopicWorkflowStarted,
	eventbus.TopicWaitingCompletion,
	eventbus.TopicOrderTimeOut,
	eventbus.TopicShopUnavailable,
	eventbus.TopicOrderFinished,
	eventbus.TopicManagerWaitingCompletion,
	eventbus.TopicOrderCompleted,
	eventbus.TopicOrderCancelled,
	eventbus.TopicMakeOrder,
}

// Publisher routes bus events to Sink topics.
type Publisher struct {
	sink Sink
	lg   *zap.Logger
}

// New creates a Publisher. A nil sink falls back to ZapSink.
func New(sink Sink, lg *zap.Logger) *Publisher {
	if sink == nil {
		sink = ZapSink{}
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Publisher{sink: sink, lg: lg.Named("publisher")}
}

// Register subscribes the publisher to every lifecycle topic.
func (p *Publisher) Register(bus *eventbus.Bus) {
	for _, topic := range adminTopics {
		bus.Subscribe(topic, p.forwardAdmin)
	}
	bus.Subscribe(eventbus.TopicConfigChanged, p.forwardConfig)
}

func (p *Publisher) forwardAdmin(ctx context.Context, evt eventbus.Event) {
	eventID := evt.EventID()
	if eventID == "" {
		eventID = "unknown"
	}
	p.forward(ctx, "presso-admin-"+eventID, evt)

	if userID := evt.UserID(); userID != "" {
		p.forward(ctx, "presso-user-"+userID, evt)
	}
}

func (p *Publisher) forwardConfig(ctx context.Context, evt eventbus.Event) {
	p.forward(ctx, "presso-config", evt)
}

// forward sends one notification; sink errors are logged and swallowed so a
// broken channel never aborts the transition that produced the event.
func (p *Publisher) forward(ctx context.Context, topic string, evt eventbus.Event) {
	if err := p.sink.Publish(ctx, topic, evt); err != nil {
		p.lg.Warn("notification delivery failed",
			zap.String("topic", topic),
			zap.String("type", evt.Type),
			zap.Error(err),
		)
	}
}
