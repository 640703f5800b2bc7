package eventbus

import "time"

// Source is the common event source tag.
const Source = "presso"

// Topic names for every lifecycle event in the system. The dotted
// "{Component}.{Event}" form mirrors the event taxonomy the components
// publish and subscribe on.
const (
	TopicNewOrder          = "Validator.NewOrder"
	TopicWorkflowStarted   = "OrderProcessor.WorkflowStarted"
	TopicWaitingCompletion = "OrderProcessor.WaitingCompletion"
	TopicOrderTimeOut      = "OrderProcessor.OrderTimeOut"
	TopicShopUnavailable   = "OrderProcessor.ShopUnavailable"
	TopicOrderFinished     = "OrderProcessor.orderFinished"

	TopicManagerWaitingCompletion = "OrderManager.WaitingCompletion"
	TopicOrderCompleted           = "OrderManager.OrderCOMPLETED"
	TopicOrderCancelled           = "OrderManager.OrderCANCELLED"
	TopicMakeOrder                = "OrderManager.MakeOrder"

	TopicConfigChanged = "ConfigService.ConfigChanged"
)

// Timeout causes carried by OrderTimeOut events.
const (
	TimeoutCauseCustomer = "customer"
	TimeoutCauseBarista  = "barista"
)

// WindowSnapshot is the state of a coupon window at redemption time,
// carried on NewOrder for observability.
type WindowSnapshot struct {
	Key             string    `json:"key"`
	EventID         string    `json:"eventId"`
	Code            string    `json:"code"`
	AvailableTokens int       `json:"availableTokens"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
}

// NewOrderDetail is published by the coupon issuer on a successful redemption.
type NewOrderDetail struct {
	OrderID string         `json:"orderId"`
	UserID  string         `json:"userId"`
	EventID string         `json:"eventId"`
	Window  WindowSnapshot `json:"bucket"`
	Message string         `json:"message,omitempty"`
}

// WorkflowStartedDetail is published by the workflow executor once an order
// passes admission and its execution record is created.
type WorkflowStartedDetail struct {
	OrderID   string `json:"orderId"`
	UserID    string `json:"userId"`
	EventID   string `json:"eventId"`
	TaskToken string `json:"taskToken"`
	Message   string `json:"message,omitempty"`
}

// WaitingCompletionDetail is published by the workflow executor when the
// customer resumed the workflow, and re-published enriched by the order
// manager for observers.
type WaitingCompletionDetail struct {
	OrderID     string      `json:"orderId"`
	UserID      string      `json:"userId"`
	EventID     string      `json:"eventId"`
	TaskToken   string      `json:"taskToken"`
	OrderNumber int64       `json:"orderNumber"`
	State       string      `json:"state,omitempty"`
	DrinkOrder  *DrinkOrder `json:"drinkOrder,omitempty"`
	Message     string      `json:"message,omitempty"`
}

// DrinkOrder is the customer's drink selection as carried on bus events.
type DrinkOrder struct {
	UserID    string   `json:"userId"`
	Drink     string   `json:"drink"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// OrderTimeOutDetail is published when a customer or barista deadline fires
// while the execution record is still running.
type OrderTimeOutDetail struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	EventID string `json:"eventId"`
	Cause   string `json:"cause"`
	Message string `json:"message,omitempty"`
}

// ShopUnavailableDetail is published when admission rejects a new order,
// either because the shop is closed or because capacity is exhausted.
type ShopUnavailableDetail struct {
	UserID  string `json:"userId"`
	EventID string `json:"eventId"`
	Message string `json:"message,omitempty"`
}

// OrderFinishedDetail is published when an execution record reaches the end
// of the workflow.
type OrderFinishedDetail struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	EventID string `json:"eventId"`
	Message string `json:"message,omitempty"`
}

// MakeOrderDetail is published when a barista claims or releases an order.
// BaristaUserID is empty on release.
type MakeOrderDetail struct {
	OrderID       string `json:"orderId"`
	UserID        string `json:"userId"`
	EventID       string `json:"eventId"`
	BaristaUserID string `json:"baristaUserId"`
	Message       string `json:"message,omitempty"`
}

// OrderStateDetail is published on the terminal OrderCOMPLETED and
// OrderCANCELLED topics.
type OrderStateDetail struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	EventID string `json:"eventId"`
	State   string `json:"orderState"`
	Message string `json:"message,omitempty"`
}

// ConfigChangedDetail carries the new configuration document after an update.
type ConfigChangedDetail struct {
	EventID  string `json:"eventId"`
	NewImage any    `json:"newImage"`
}
