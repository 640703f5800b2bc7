package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/presso/internal/domain/config"
	"github.com/xenking/presso/internal/domain/coupon"
	"github.com/xenking/presso/internal/domain/order"
	"github.com/xenking/presso/internal/domain/workflow"
	"github.com/xenking/presso/internal/eventbus"
	"github.com/xenking/presso/internal/observer/journey"
	"github.com/xenking/presso/internal/observer/metrics"
)

type memWindowRepo struct {
	mu      sync.Mutex
	windows map[string]coupon.Window
}

func (m *memWindowRepo) Get(_ context.Context, key string) (*coupon.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[key]
	if !ok {
		return nil, coupon.ErrWindowNotFound
	}
	return &w, nil
}

func (m *memWindowRepo) Put(_ context.Context, w *coupon.Window) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[w.Key] = *w
	return nil
}

func (m *memWindowRepo) SetTokens(_ context.Context, key string, tokens int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[key]
	if !ok {
		return coupon.ErrWindowNotFound
	}
	w.AvailableTokens = tokens
	m.windows[key] = w
	return nil
}

type memConfigRepo struct {
	mu      sync.Mutex
	configs map[string]config.EventConfig
}

func (m *memConfigRepo) Get(_ context.Context, eventID string) (*config.EventConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[eventID]
	if !ok {
		return nil, config.ErrNotFound
	}
	return &cfg, nil
}

func (m *memConfigRepo) Put(_ context.Context, cfg *config.EventConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.EventID] = *cfg
	return nil
}

func (m *memConfigRepo) List(_ context.Context) ([]config.EventConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]config.EventConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		out = append(out, cfg)
	}
	return out, nil
}

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]order.Order
}

func (m *memOrderRepo) Put(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = *o
	return nil
}

func (m *memOrderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (m *memOrderRepo) Update(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return order.ErrNotFound
	}
	m.orders[o.ID] = *o
	return nil
}

func (m *memOrderRepo) ListByState(_ context.Context, state string, limit int) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if o.State == state && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrderRepo) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

type memCounters struct {
	mu     sync.Mutex
	values map[string]int64
}

func (m *memCounters) Increment(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key]++
	return m.values[key], nil
}

// testEnv wires the full in-process stack behind an echo instance.
type testEnv struct {
	echo    *echo.Echo
	bus     *eventbus.Bus
	configs *memConfigRepo
	orders  *memOrderRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	bus := eventbus.New()
	configs := &memConfigRepo{configs: map[string]config.EventConfig{
		"ABC": {
			EventID:          "ABC",
			StoreOpen:        true,
			DrinksPerBarcode: 2,
			Menu: []config.MenuItem{
				{Drink: "Latte", Modifiers: []config.ModifierGroup{
					{Name: "Milk", Options: []string{"Whole", "Oat"}},
				}},
			},
		},
	}}
	orders := &memOrderRepo{orders: make(map[string]order.Order)}
	windows := &memWindowRepo{windows: make(map[string]coupon.Window)}

	issuer := coupon.NewIssuer(windows, configs, bus)
	exec := workflow.New(bus, configs, &memCounters{values: make(map[string]int64)}, workflow.Config{
		MaxConcurrentOrders: 20,
		CustomerTimeout:     time.Minute,
		BaristaTimeout:      time.Minute,
	}, nil)
	exec.Register(bus)
	manager := order.NewManager(orders, configs, exec, bus, nil)
	manager.Register(bus)

	agg, err := metrics.New(nil, nil)
	require.NoError(t, err)
	agg.Register(bus)
	rec := journey.NewRecorder(journey.NewMemoryRepository(), nil)
	rec.Register(bus)

	e := echo.New()
	NewHandler(issuer, manager, configs, agg, rec, bus).Routes(e)

	return &testEnv{echo: e, bus: bus, configs: configs, orders: orders}
}

func (env *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func TestIssueCode(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/qr-code?eventId=ABC", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp codeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ABC", resp.EventID)
	assert.Len(t, resp.Code, 10)
	assert.Equal(t, 2, resp.AvailableTokens)
}

func TestIssueCodeUnknownEvent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/qr-code?eventId=nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRedeemFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/qr-code?eventId=ABC", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var issued codeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))

	rec = env.do(http.MethodPost, "/qr-code?eventId=ABC&token="+issued.Code+"&userId=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var redeemed redeemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &redeemed))
	require.NotEmpty(t, redeemed.OrderID)

	// The synchronous fabric has already run the executor and manager.
	rec = env.do(http.MethodGet, "/orders/"+redeemed.OrderID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var o orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, "ABC-CREATED", o.State)
	assert.Equal(t, "u1", o.UserID)
}

func TestRedeemInvalidCode(t *testing.T) {
	env := newTestEnv(t)

	env.do(http.MethodGet, "/qr-code?eventId=ABC", "")
	rec := env.do(http.MethodPost, "/qr-code?eventId=ABC&token=WRONGCODE0&userId=u1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRedeemExhaustedBudget(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/qr-code?eventId=ABC", "")
	var issued codeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))

	for range 2 {
		rec = env.do(http.MethodPost, "/qr-code?eventId=ABC&token="+issued.Code+"&userId=u1", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = env.do(http.MethodPost, "/qr-code?eventId=ABC&token="+issued.Code+"&userId=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp redeemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.OrderID)
	assert.NotEmpty(t, resp.Message)
}

func TestSubmitOrder(t *testing.T) {
	env := newTestEnv(t)

	orderID := redeemOrder(t, env, "u1")

	rec := env.do(http.MethodPut, "/orders/"+orderID+"?eventId=ABC&userId=u1",
		`{"drink":"Latte","modifiers":["Oat"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var o orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, int64(1), o.OrderNumber)
	require.NotNil(t, o.DrinkOrder)
	assert.Equal(t, "Latte", o.DrinkOrder.Drink)
}

func TestSubmitOrderOffMenu(t *testing.T) {
	env := newTestEnv(t)

	orderID := redeemOrder(t, env, "u1")

	rec := env.do(http.MethodPut, "/orders/"+orderID+"?eventId=ABC&userId=u1",
		`{"drink":"Mocha"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitOrderWrongOwner(t *testing.T) {
	env := newTestEnv(t)

	orderID := redeemOrder(t, env, "u1")

	rec := env.do(http.MethodPut, "/orders/"+orderID+"?eventId=ABC&userId=intruder",
		`{"drink":"Latte"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCompleteOrder(t *testing.T) {
	env := newTestEnv(t)

	orderID := redeemOrder(t, env, "u1")
	rec := env.do(http.MethodPut, "/orders/"+orderID+"?eventId=ABC&userId=u1",
		`{"drink":"Latte"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPut, "/orders/"+orderID+"?eventId=ABC&action=complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var o orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, "ABC-COMPLETED", o.State)
}

func TestPutOrderUnknownAction(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/orders/any?eventId=ABC&action=explode", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrderNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/orders/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutConfigAnnouncesChange(t *testing.T) {
	env := newTestEnv(t)

	var announced []eventbus.Event
	env.bus.Subscribe(eventbus.TopicConfigChanged, func(_ context.Context, evt eventbus.Event) {
		announced = append(announced, evt)
	})

	rec := env.do(http.MethodPut, "/config?eventId=ABC",
		`{"storeOpen":false,"drinksPerBarcode":5,"menu":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, announced, 1)

	cfg, err := env.configs.Get(context.Background(), "ABC")
	require.NoError(t, err)
	assert.False(t, cfg.StoreOpen)
	assert.Equal(t, 5, cfg.DrinksPerBarcode)
}

func TestMetricsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	orderID := redeemOrder(t, env, "u1")
	env.do(http.MethodPut, "/orders/"+orderID+"?eventId=ABC&userId=u1", `{"drink":"Latte"}`)
	env.do(http.MethodPut, "/orders/"+orderID+"?eventId=ABC&action=complete", "")

	rec := env.do(http.MethodGet, "/metrics/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var om metrics.OrderMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &om))
	assert.Equal(t, int64(1), om.Started)
	assert.Equal(t, int64(1), om.Completed)

	rec = env.do(http.MethodPost, "/metrics/reset", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, "/metrics/orders", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &om))
	assert.Zero(t, om.Total)
}

func TestOrderJourneyEndpoint(t *testing.T) {
	env := newTestEnv(t)

	orderID := redeemOrder(t, env, "u1")

	rec := env.do(http.MethodGet, "/order-journey/"+orderID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []journey.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.NotEmpty(t, events)
	assert.Equal(t, eventbus.TopicNewOrder, events[0].DetailType)

	rec = env.do(http.MethodGet, "/order-journey/"+orderID+"/html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), orderID)
}

func redeemOrder(t *testing.T, env *testEnv, userID string) string {
	t.Helper()

	rec := env.do(http.MethodGet, "/qr-code?eventId=ABC", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var issued codeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))

	rec = env.do(http.MethodPost, "/qr-code?eventId=ABC&token="+issued.Code+"&userId="+userID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var redeemed redeemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &redeemed))
	require.NotEmpty(t, redeemed.OrderID)
	return redeemed.OrderID
}
