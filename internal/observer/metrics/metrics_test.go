package metrics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/presso/internal/eventbus"
)

func newTestAggregator(t *testing.T) (*Aggregator, *eventbus.Bus) {
	t.Helper()
	agg, err := New(nil, nil)
	require.NoError(t, err)
	bus := eventbus.New()
	agg.Register(bus)
	return agg, bus
}

func publish(bus *eventbus.Bus, topic string, detail any) {
	bus.Publish(context.Background(), eventbus.Event{
		Type:   topic,
		Source: eventbus.Source,
		Time:   time.Now(),
		Detail: detail,
	})
}

func TestAggregatorCountsOutcomes(t *testing.T) {
	agg, bus := newTestAggregator(t)

	publish(bus, eventbus.TopicNewOrder, eventbus.NewOrderDetail{OrderID: "o1", EventID: "ABC", UserID: "u1"})
	publish(bus, eventbus.TopicNewOrder, eventbus.NewOrderDetail{OrderID: "o2", EventID: "ABC", UserID: "u2"})
	publish(bus, eventbus.TopicNewOrder, eventbus.NewOrderDetail{OrderID: "o3", EventID: "ABC", UserID: "u3"})
	publish(bus, eventbus.TopicOrderCompleted, eventbus.OrderStateDetail{OrderID: "o1", EventID: "ABC"})
	publish(bus, eventbus.TopicOrderCancelled, eventbus.OrderStateDetail{OrderID: "o2", EventID: "ABC"})
	publish(bus, eventbus.TopicOrderTimeOut, eventbus.OrderTimeOutDetail{OrderID: "o3", EventID: "ABC", Cause: eventbus.TimeoutCauseCustomer})

	orders := agg.Orders()
	assert.Equal(t, int64(3), orders.Started)
	assert.Equal(t, int64(1), orders.Completed)
	assert.Equal(t, int64(1), orders.Cancelled)
	assert.Equal(t, int64(1), orders.Timeout)
	assert.Equal(t, int64(3), orders.Total)
	assert.Equal(t, "33.33%", orders.CompletionRate)
	assert.Equal(t, "33.33%", orders.CancellationRate)
	assert.Equal(t, "33.33%", orders.TimeoutRate)
}

func TestAggregatorZeroTotalRates(t *testing.T) {
	agg, _ := newTestAggregator(t)

	orders := agg.Orders()
	assert.Equal(t, "0%", orders.CompletionRate)
	assert.Equal(t, "0%", orders.CancellationRate)
	assert.Equal(t, "0%", orders.TimeoutRate)
}

func TestAggregatorDrinkAndModifierTallies(t *testing.T) {
	agg, bus := newTestAggregator(t)

	latte := &eventbus.DrinkOrder{Drink: "Latte", Modifiers: []string{"Oat", "Large"}}
	americano := &eventbus.DrinkOrder{Drink: "Americano", Modifiers: []string{"Large"}}

	publish(bus, eventbus.TopicManagerWaitingCompletion, eventbus.WaitingCompletionDetail{OrderID: "o1", EventID: "ABC", DrinkOrder: latte})
	publish(bus, eventbus.TopicManagerWaitingCompletion, eventbus.WaitingCompletionDetail{OrderID: "o2", EventID: "ABC", DrinkOrder: latte})
	publish(bus, eventbus.TopicManagerWaitingCompletion, eventbus.WaitingCompletionDetail{OrderID: "o3", EventID: "ABC", DrinkOrder: americano})

	drinks := agg.Drinks()
	require.Len(t, drinks, 2)
	assert.Equal(t, DimensionCount{Name: "Latte", Count: 2}, drinks[0])
	assert.Equal(t, DimensionCount{Name: "Americano", Count: 1}, drinks[1])

	modifiers := agg.Modifiers()
	require.Len(t, modifiers, 2)
	assert.Equal(t, DimensionCount{Name: "Large", Count: 3}, modifiers[0])
	assert.Equal(t, DimensionCount{Name: "Oat", Count: 2}, modifiers[1])
}

func TestAggregatorIgnoresWaitingCompletionWithoutDrink(t *testing.T) {
	agg, bus := newTestAggregator(t)

	publish(bus, eventbus.TopicManagerWaitingCompletion, eventbus.WaitingCompletionDetail{OrderID: "o1", EventID: "ABC"})

	assert.Empty(t, agg.Drinks())
	assert.Zero(t, agg.EventCount())
}

func TestAggregatorEventLogBounded(t *testing.T) {
	agg, bus := newTestAggregator(t)

	for i := 0; i < DefaultEventLogCapacity+50; i++ {
		publish(bus, eventbus.TopicNewOrder, eventbus.NewOrderDetail{OrderID: fmt.Sprintf("o%d", i), EventID: "ABC"})
	}

	assert.Equal(t, DefaultEventLogCapacity, agg.EventCount())

	// The full log still reflects every publish in the counters.
	assert.Equal(t, int64(DefaultEventLogCapacity+50), agg.Orders().Started)
}

func TestAggregatorEventsFilterAndLimit(t *testing.T) {
	agg, bus := newTestAggregator(t)

	publish(bus, eventbus.TopicNewOrder, eventbus.NewOrderDetail{OrderID: "o1", EventID: "ABC"})
	publish(bus, eventbus.TopicManagerWaitingCompletion, eventbus.WaitingCompletionDetail{
		OrderID: "o1", EventID: "ABC",
		DrinkOrder: &eventbus.DrinkOrder{Drink: "Latte"},
	})
	publish(bus, eventbus.TopicOrderCompleted, eventbus.OrderStateDetail{OrderID: "o1", EventID: "ABC"})

	all := agg.Events("", 10)
	require.Len(t, all, 3)
	assert.Equal(t, "Started", all[0].Dimension)
	assert.Equal(t, "Latte", all[1].Dimension)
	assert.Equal(t, "Completed", all[2].Dimension)

	drinks := agg.Events("Drink", 10)
	require.Len(t, drinks, 1)
	assert.Equal(t, "Latte", drinks[0].Dimension)

	limited := agg.Events("", 2)
	require.Len(t, limited, 2)
	assert.Equal(t, "Latte", limited[0].Dimension)
	assert.Equal(t, "Completed", limited[1].Dimension)
}

func TestAggregatorReset(t *testing.T) {
	agg, bus := newTestAggregator(t)

	publish(bus, eventbus.TopicNewOrder, eventbus.NewOrderDetail{OrderID: "o1", EventID: "ABC"})
	publish(bus, eventbus.TopicManagerWaitingCompletion, eventbus.WaitingCompletionDetail{
		OrderID: "o1", EventID: "ABC",
		DrinkOrder: &eventbus.DrinkOrder{Drink: "Latte"},
	})

	agg.Reset()

	assert.Zero(t, agg.Orders().Total)
	assert.Empty(t, agg.Drinks())
	assert.Empty(t, agg.Modifiers())
	assert.Zero(t, agg.EventCount())
}

func TestAggregatorReport(t *testing.T) {
	agg, bus := newTestAggregator(t)

	publish(bus, eventbus.TopicNewOrder, eventbus.NewOrderDetail{OrderID: "o1", EventID: "ABC"})
	publish(bus, eventbus.TopicManagerWaitingCompletion, eventbus.WaitingCompletionDetail{
		OrderID: "o1", EventID: "ABC",
		DrinkOrder: &eventbus.DrinkOrder{Drink: "Latte", Modifiers: []string{"Oat"}},
	})
	publish(bus, eventbus.TopicOrderCompleted, eventbus.OrderStateDetail{OrderID: "o1", EventID: "ABC"})

	report := agg.Report()
	assert.Contains(t, report, "total=1")
	assert.Contains(t, report, "completed=1 (100.00%)")
	assert.Contains(t, report, "Latte=1")
	assert.Contains(t, report, "Oat=1")
}
