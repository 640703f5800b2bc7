package eventbus

// OrderID extracts the order id from the event's detail payload, or "" for
// events not tagged with an order (ShopUnavailable, ConfigChanged).
func (e Event) OrderID() string {
	switch d := e.Detail.(type) {
	case NewOrderDetail:
		return d.OrderID
	case WorkflowStartedDetail:
		return d.OrderID
	case WaitingCompletionDetail:
		return d.OrderID
	case OrderTimeOutDetail:
		return d.OrderID
	case OrderFinishedDetail:
		return d.OrderID
	case MakeOrderDetail:
		return d.OrderID
	case OrderStateDetail:
		return d.OrderID
	}
	return ""
}

// EventID extracts the event (venue) id from the detail payload, or "".
func (e Event) EventID() string {
	switch d := e.Detail.(type) {
	case NewOrderDetail:
		return d.EventID
	case WorkflowStartedDetail:
		return d.EventID
	case WaitingCompletionDetail:
		return d.EventID
	case OrderTimeOutDetail:
		return d.EventID
	case ShopUnavailableDetail:
		return d.EventID
	case OrderFinishedDetail:
		return d.EventID
	case MakeOrderDetail:
		return d.EventID
	case OrderStateDetail:
		return d.EventID
	case ConfigChangedDetail:
		return d.EventID
	}
	return ""
}

// UserID extracts the customer id from the detail payload, or "".
func (e Event) UserID() string {
	switch d := e.Detail.(type) {
	case NewOrderDetail:
		return d.UserID
	case WorkflowStartedDetail:
		return d.UserID
	case WaitingCompletionDetail:
		return d.UserID
	case OrderTimeOutDetail:
		return d.UserID
	case ShopUnavailableDetail:
		return d.UserID
	case OrderFinishedDetail:
		return d.UserID
	case MakeOrderDetail:
		return d.UserID
	case OrderStateDetail:
		return d.UserID
	}
	return ""
}
