package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/presso/internal/eventbus"
	"github.com/xenking/presso/internal/observer/journey"
)

// TestFullOrderLifecycle drives one order through the whole stack over HTTP:
// issue a code with a budget of one drink, redeem it, submit the drink,
// complete it, and check every read model agrees.
func TestFullOrderLifecycle(t *testing.T) {
	env := newTestEnv(t)

	cfg, err := env.configs.Get(context.Background(), "ABC")
	require.NoError(t, err)
	cfg.DrinksPerBarcode = 1
	require.NoError(t, env.configs.Put(context.Background(), cfg))

	// Issue and redeem the only token of the window.
	rec := env.do(http.MethodGet, "/qr-code?eventId=ABC", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var issued codeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	require.Equal(t, 1, issued.AvailableTokens)

	rec = env.do(http.MethodPost, "/qr-code?eventId=ABC&token="+issued.Code+"&userId=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var redeemed redeemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &redeemed))
	require.NotEmpty(t, redeemed.OrderID)
	orderID := redeemed.OrderID

	// The window is spent now; the same code yields no further orders.
	rec = env.do(http.MethodPost, "/qr-code?eventId=ABC&token="+issued.Code+"&userId=u2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var second redeemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Empty(t, second.OrderID)

	// Customer submits their drink and receives order number 1.
	rec = env.do(http.MethodPut, "/orders/"+orderID+"?eventId=ABC&userId=u1",
		`{"drink":"Latte","modifiers":["Oat"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var o orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, int64(1), o.OrderNumber)

	// Barista claims, then completes.
	rec = env.do(http.MethodPut, "/orders/"+orderID+"?eventId=ABC&action=make&userId=barista1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPut, "/orders/"+orderID+"?eventId=ABC&action=complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, "ABC-COMPLETED", o.State)
	assert.Equal(t, "barista1", o.BaristaUserID)

	// Metrics saw exactly one started and one completed order.
	rec = env.do(http.MethodGet, "/metrics/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var om struct {
		Started   int64 `json:"started"`
		Completed int64 `json:"completed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &om))
	assert.Equal(t, int64(1), om.Started)
	assert.Equal(t, int64(1), om.Completed)

	// The journey recorded the full trail in order.
	rec = env.do(http.MethodGet, "/order-journey/"+orderID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []journey.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	trail := make([]string, len(events))
	for i, evt := range events {
		trail[i] = evt.DetailType
	}
	assert.Equal(t, []string{
		eventbus.TopicNewOrder,
		eventbus.TopicWorkflowStarted,
		eventbus.TopicWaitingCompletion,
		eventbus.TopicManagerWaitingCompletion,
		eventbus.TopicMakeOrder,
		eventbus.TopicOrderCompleted,
		eventbus.TopicOrderFinished,
	}, trail)
}
