package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xenking/presso/internal/domain/order"
)

type orderResponse struct {
	ID            string                `json:"orderId"`
	UserID        string                `json:"userId"`
	EventID       string                `json:"eventId"`
	State         string                `json:"orderState"`
	OrderNumber   int64                 `json:"orderNumber,omitempty"`
	DrinkOrder    *order.DrinkSelection `json:"drinkOrder,omitempty"`
	BaristaUserID string                `json:"baristaUserId,omitempty"`
	TS            time.Time             `json:"ts"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		EventID:       o.EventID,
		State:         o.State,
		OrderNumber:   o.OrderNumber,
		DrinkOrder:    o.DrinkOrder,
		BaristaUserID: o.BaristaUserID,
		TS:            o.TS,
	}
}

func toOrderResponses(orders []order.Order) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	return out
}

// ListOrders handles GET /orders: orders in one composite state for an event.
func (h *Handler) ListOrders(c echo.Context) error {
	state := c.QueryParam("state")
	eventID := c.QueryParam("eventId")
	if state == "" || eventID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "state and eventId are required"})
	}

	limit := 0
	if raw := c.QueryParam("maxItems"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Message: "maxItems must be a number"})
		}
		limit = n
	}

	orders, err := h.orders.List(c.Request().Context(), state, eventID, limit)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponses(orders))
}

// ListMyOrders handles GET /myOrders: the caller's orders, newest first.
func (h *Handler) ListMyOrders(c echo.Context) error {
	uid := userID(c)
	if uid == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "userId is required"})
	}

	orders, err := h.orders.ListMine(c.Request().Context(), uid)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponses(orders))
}

// GetOrder handles GET /orders/:id.
func (h *Handler) GetOrder(c echo.Context) error {
	o, err := h.orders.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

type submitRequest struct {
	Drink     string   `json:"drink"`
	Modifiers []string `json:"modifiers"`
}

// PutOrder handles PUT /orders/:id. Without an action parameter the body is
// the customer's drink submission; with one it is a barista action:
// complete, cancel, make (claim) or unmake (release).
func (h *Handler) PutOrder(c echo.Context) error {
	ctx := c.Request().Context()
	orderID := c.Param("id")
	eventID := c.QueryParam("eventId")
	if eventID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "eventId is required"})
	}

	var err error
	switch action := c.QueryParam("action"); action {
	case "":
		var req submitRequest
		if bindErr := c.Bind(&req); bindErr != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		}
		err = h.orders.Submit(ctx, orderID, userID(c), eventID, order.DrinkSelection{
			Drink:     req.Drink,
			Modifiers: req.Modifiers,
		})
	case "complete":
		err = h.orders.Complete(ctx, orderID, eventID)
	case "cancel":
		err = h.orders.Cancel(ctx, orderID, eventID)
	case "make":
		err = h.orders.Claim(ctx, orderID, eventID, userID(c))
	case "unmake":
		err = h.orders.Unclaim(ctx, orderID, eventID)
	default:
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "unknown action"})
	}
	if err != nil {
		return mapError(c, err)
	}

	o, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}
