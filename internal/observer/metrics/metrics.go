// Package metrics aggregates business counters from lifecycle events:
// order totals by outcome, per-drink and per-modifier tallies, and a bounded
// log of recent metric events. Rates are derived on read, never stored.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/presso/internal/eventbus"
)

// DefaultEventLogCapacity bounds the recent-event ring.
const DefaultEventLogCapacity = 1000

// RecordedEvent is one entry in the bounded event log.
type RecordedEvent struct {
	Type      string    `json:"type"`
	Dimension string    `json:"dimension,omitempty"`
	Value     int64     `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderMetrics is the order-outcome snapshot with derived rates.
type OrderMetrics struct {
	Started          int64  `json:"started"`
	Completed        int64  `json:"completed"`
	Cancelled        int64  `json:"cancelled"`
	Timeout          int64  `json:"timeout"`
	Total            int64  `json:"total"`
	CompletionRate   string `json:"completionRate"`
	CancellationRate string `json:"cancellationRate"`
	TimeoutRate      string `json:"timeoutRate"`
}

// DimensionCount is one tally row for drinks or modifiers, sorted by count
// descending.
type DimensionCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Aggregator consumes lifecycle events and maintains counters. All state is
// in memory; the same counts are additionally exported through OTel
// instruments so external collectors see them too.
type Aggregator struct {
	lg *zap.Logger

	mu        sync.Mutex
	started   int64
	completed int64
	cancelled int64
	timeout   int64
	total     int64
	drinks    map[string]int64
	modifiers map[string]int64

	// ring is a fixed-capacity circular event log, oldest dropped.
	ring  []RecordedEvent
	head  int
	count int

	otelOrders metric.Int64Counter
	otelDrinks metric.Int64Counter
}

// New creates an Aggregator exporting through the given meter. A nil meter
// disables OTel export.
func New(meter metric.Meter, lg *zap.Logger) (*Aggregator, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("presso")
	}
	if lg == nil {
		lg = zap.NewNop()
	}

	orders, err := meter.Int64Counter("presso.orders",
		metric.WithDescription("Order lifecycle outcomes"))
	if err != nil {
		return nil, err
	}
	drinks, err := meter.Int64Counter("presso.drinks",
		metric.WithDescription("Drinks ordered, by drink and modifier"))
	if err != nil {
		return nil, err
	}

	return &Aggregator{
		lg:         lg.Named("metrics"),
		drinks:     make(map[string]int64),
		modifiers:  make(map[string]int64),
		ring:       make([]RecordedEvent, DefaultEventLogCapacity),
		otelOrders: orders,
		otelDrinks: drinks,
	}, nil
}

// Register subscribes the aggregator to the lifecycle topics it counts.
func (a *Aggregator) Register(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.TopicNewOrder, a.handleNewOrder)
	bus.Subscribe(eventbus.TopicOrderTimeOut, a.handleTimeout)
	bus.Subscribe(eventbus.TopicManagerWaitingCompletion, a.handleWaitingCompletion)
	bus.Subscribe(eventbus.TopicOrderCompleted, a.handleCompleted)
	bus.Subscribe(eventbus.TopicOrderCancelled, a.handleCancelled)
}

func (a *Aggregator) handleNewOrder(ctx context.Context, evt eventbus.Event) {
	a.mu.Lock()
	a.started++
	a.total++
	a.record(RecordedEvent{Type: "Order", Dimension: "Started", Value: 1, Timestamp: evt.Time})
	a.mu.Unlock()

	a.otelOrders.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "started")))
}

func (a *Aggregator) handleTimeout(ctx context.Context, evt eventbus.Event) {
	a.mu.Lock()
	a.timeout++
	a.record(RecordedEvent{Type: "Order", Dimension: "Timeout", Value: 1, Timestamp: evt.Time})
	a.mu.Unlock()

	a.otelOrders.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "timeout")))
}

func (a *Aggregator) handleCompleted(ctx context.Context, evt eventbus.Event) {
	a.mu.Lock()
	a.completed++
	a.record(RecordedEvent{Type: "Order", Dimension: "Completed", Value: 1, Timestamp: evt.Time})
	a.mu.Unlock()

	a.otelOrders.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "completed")))
}

func (a *Aggregator) handleCancelled(ctx context.Context, evt eventbus.Event) {
	a.mu.Lock()
	a.cancelled++
	a.record(RecordedEvent{Type: "Order", Dimension: "Cancelled", Value: 1, Timestamp: evt.Time})
	a.mu.Unlock()

	a.otelOrders.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "cancelled")))
}

func (a *Aggregator) handleWaitingCompletion(ctx context.Context, evt eventbus.Event) {
	detail, ok := evt.Detail.(eventbus.WaitingCompletionDetail)
	if !ok || detail.DrinkOrder == nil {
		return
	}

	a.mu.Lock()
	a.drinks[detail.DrinkOrder.Drink]++
	a.record(RecordedEvent{Type: "Drink", Dimension: detail.DrinkOrder.Drink, Value: 1, Timestamp: evt.Time})
	for _, mod := range detail.DrinkOrder.Modifiers {
		a.modifiers[mod]++
		a.record(RecordedEvent{Type: "Modifier", Dimension: mod, Value: 1, Timestamp: evt.Time})
	}
	a.mu.Unlock()

	a.otelDrinks.Add(ctx, 1, metric.WithAttributes(attribute.String("drink", detail.DrinkOrder.Drink)))
}

// record appends to the ring. Caller holds a.mu.
func (a *Aggregator) record(e RecordedEvent) {
	a.ring[(a.head+a.count)%len(a.ring)] = e
	if a.count < len(a.ring) {
		a.count++
	} else {
		a.head = (a.head + 1) % len(a.ring)
	}
}

// Orders returns the order-outcome snapshot with derived rates.
func (a *Aggregator) Orders() OrderMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return OrderMetrics{
		Started:          a.started,
		Completed:        a.completed,
		Cancelled:        a.cancelled,
		Timeout:          a.timeout,
		Total:            a.total,
		CompletionRate:   rate(a.completed, a.total),
		CancellationRate: rate(a.cancelled, a.total),
		TimeoutRate:      rate(a.timeout, a.total),
	}
}

// Drinks returns per-drink tallies, most ordered first.
func (a *Aggregator) Drinks() []DimensionCount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return sortedCounts(a.drinks)
}

// Modifiers returns per-modifier tallies, most used first.
func (a *Aggregator) Modifiers() []DimensionCount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return sortedCounts(a.modifiers)
}

// Events returns up to limit most recent recorded events, oldest first,
// optionally filtered by type.
func (a *Aggregator) Events(eventType string, limit int) []RecordedEvent {
	if limit <= 0 {
		limit = 100
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]RecordedEvent, 0, limit)
	for i := range a.count {
		e := a.ring[(a.head+i)%len(a.ring)]
		if eventType != "" && e.Type != eventType {
			continue
		}
		out = append(out, e)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// EventCount returns the number of entries in the event log.
func (a *Aggregator) EventCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Reset zeroes all counters and clears the event log. The OTel instruments
// are cumulative by design and are not reset.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started, a.completed, a.cancelled, a.timeout, a.total = 0, 0, 0, 0, 0
	a.drinks = make(map[string]int64)
	a.modifiers = make(map[string]int64)
	a.head, a.count = 0, 0
	a.lg.Info("metrics reset")
}

// Report renders a human-readable summary of all metrics.
func (a *Aggregator) Report() string {
	orders := a.Orders()
	drinks := a.Drinks()
	modifiers := a.Modifiers()

	var b strings.Builder
	fmt.Fprintf(&b, "orders: total=%d started=%d completed=%d (%s) cancelled=%d (%s) timeout=%d (%s)",
		orders.Total, orders.Started,
		orders.Completed, orders.CompletionRate,
		orders.Cancelled, orders.CancellationRate,
		orders.Timeout, orders.TimeoutRate,
	)
	if len(drinks) > 0 {
		b.WriteString("; drinks:")
		for _, d := range drinks {
			fmt.Fprintf(&b, " %s=%d", d.Name, d.Count)
		}
	}
	if len(modifiers) > 0 {
		b.WriteString("; modifiers:")
		for _, m := range modifiers {
			fmt.Fprintf(&b, " %s=%d", m.Name, m.Count)
		}
	}
	return b.String()
}

func rate(part, total int64) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(part)/float64(total)*100)
}

func sortedCounts(m map[string]int64) []DimensionCount {
	out := make([]DimensionCount, 0, len(m))
	for name, count := range m {
		out = append(out, DimensionCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
