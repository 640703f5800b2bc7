// Package journey records the lifecycle trail of every order: each bus event
// tagged with an order id is appended to a repository, and the trail can be
// read back in chronological order or rendered for operators.
package journey

import (
	"context"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/presso/internal/eventbus"
)

// ErrNotFound is returned when no journey exists for an order id.
var ErrNotFound = errors.New("journey: order not found")

// Event is one recorded step of an order's journey.
type Event struct {
	OrderID    string    `json:"orderId"`
	Timestamp  time.Time `json:"timestamp"`
	DetailType string    `json:"detailType"`
	Payload    any       `json:"payload,omitempty"`
}

// Repository persists journey events. Append must preserve insertion order
// per order id.
type Repository interface {
	Append(ctx context.Context, evt Event) error
	ListByOrder(ctx context.Context, orderID string) ([]Event, error)
	All(ctx context.Context) ([]Event, error)
}

// Stats aggregates the journey log across all orders.
type Stats struct {
	Orders      int            `json:"orders"`
	Events      int            `json:"events"`
	ByDetail    map[string]int `json:"byDetailType"`
	FirstEvent  time.Time      `json:"firstEvent,omitzero"`
	LatestEvent time.Time      `json:"latestEvent,omitzero"`
}

// Recorder subscribes to every order-tagged lifecycle topic and appends each
// event to the repository.
type Recorder struct {
	journeys Repository
	lg       *zap.Logger
}

// NewRecorder creates a Recorder writing to journeys.
func NewRecorder(journeys Repository, lg *zap.Logger) *Recorder {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Recorder{
		journeys: journeys,
		lg:       lg.Named("journey"),
	}
}

// Register subscribes the recorder to all lifecycle topics. Events without an
// order id are skipped.
func (r *Recorder) Register(bus *eventbus.Bus) {
	for _, topic := range []string{
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
	} {
		bus.Subscribe(topic, r.handle)
	}
}

func (r *Recorder) handle(ctx context.Context, evt eventbus.Event) {
	orderID := evt.OrderID()
	if orderID == "" {
		return
	}

	err := r.journeys.Append(ctx, Event{
		OrderID:    orderID,
		Timestamp:  evt.Time,
		DetailType: evt.Type,
		Payload:    evt.Detail,
	})
	if err != nil {
		zctx.From(ctx).Error("append journey event",
			zap.String("order_id", orderID),
			zap.String("topic", evt.Type),
			zap.Error(err),
		)
	}
}

// Journey returns the recorded trail for one order, oldest first.
func (r *Recorder) Journey(ctx context.Context, orderID string) ([]Event, error) {
	events, err := r.journeys.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list journey")
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	sortEvents(events)
	return events, nil
}

// Stats aggregates the full journey log.
func (r *Recorder) Stats(ctx context.Context) (Stats, error) {
	events, err := r.journeys.All(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "list journeys")
	}

	stats := Stats{ByDetail: make(map[string]int)}
	orders := make(map[string]struct{})
	for _, evt := range events {
		orders[evt.OrderID] = struct{}{}
		stats.ByDetail[evt.DetailType]++
		if stats.FirstEvent.IsZero() || evt.Timestamp.Before(stats.FirstEvent) {
			stats.FirstEvent = evt.Timestamp
		}
		if evt.Timestamp.After(stats.LatestEvent) {
			stats.LatestEvent = evt.Timestamp
		}
	}
	stats.Orders = len(orders)
	stats.Events = len(events)
	return stats, nil
}

var journeyTmpl = template.Must(template.New("journey").Parse(`<!DOCTYPE html>
<html>
<head><title>Order {{.OrderID}}</title></head>
<body>
<h1>Order {{.OrderID}}</h1>
<table border="1" cellpadding="4">
<tr><th>Time</th><th>Event</th></tr>
{{- range .Events}}
<tr><td>{{.Timestamp.Format "15:04:05.000"}}</td><td>{{.DetailType}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

// RenderHTML renders one order's journey as a standalone HTML page.
func (r *Recorder) RenderHTML(ctx context.Context, orderID string) (string, error) {
	events, err := r.Journey(ctx, orderID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	err = journeyTmpl.Execute(&b, struct {
		OrderID string
		Events  []Event
	}{OrderID: orderID, Events: events})
	if err != nil {
		return "", errors.Wrap(err, "render journey")
	}
	return b.String(), nil
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// MemoryRepository is an in-memory Repository used in tests and as the
// default when no database is configured.
type MemoryRepository struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Append(_ context.Context, evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *MemoryRepository) ListByOrder(_ context.Context, orderID string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, evt := range m.events {
		if evt.OrderID == orderID {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (m *MemoryRepository) All(_ context.Context) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)

// String implements fmt.Stringer for a single event, used in logs.
func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Timestamp.Format(time.RFC3339Nano), e.DetailType)
}
