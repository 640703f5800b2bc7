// Package handler exposes the HTTP surface: coupon issuance and redemption,
// order actions for customers and baristas, event configuration, and the
// observer read models. Handlers are thin glue over the domain services.
package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/labstack/echo/v4"

	"github.com/xenking/presso/internal/domain/config"
	"github.com/xenking/presso/internal/domain/coupon"
	"github.com/xenking/presso/internal/domain/order"
	"github.com/xenking/presso/internal/eventbus"
	"github.com/xenking/presso/internal/observer/journey"
	"github.com/xenking/presso/internal/observer/metrics"
)

// Handler holds the domain dependencies behind the HTTP routes.
type Handler struct {
	issuer  *coupon.Issuer
	orders  *order.Manager
	configs config.Repository
	metrics *metrics.Aggregator
	journey *journey.Recorder
	bus     *eventbus.Bus
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	issuer *coupon.Issuer,
	orders *order.Manager,
	configs config.Repository,
	agg *metrics.Aggregator,
	rec *journey.Recorder,
	bus *eventbus.Bus,
) *Handler {
	return &Handler{
		issuer:  issuer,
		orders:  orders,
		configs: configs,
		metrics: agg,
		journey: rec,
		bus:     bus,
	}
}

// Routes registers every route on the echo instance.
func (h *Handler) Routes(e *echo.Echo) {
	e.GET("/qr-code", h.IssueCode)
	e.POST("/qr-code", h.RedeemCode)

	e.GET("/orders", h.ListOrders)
	e.GET("/myOrders", h.ListMyOrders)
	e.GET("/orders/:id", h.GetOrder)
	e.PUT("/orders/:id", h.PutOrder)

	e.GET("/config", h.GetConfig)
	e.PUT("/config", h.PutConfig)
	e.GET("/config/all", h.ListConfigs)

	e.GET("/order-journey/stats", h.JourneyStats)
	e.GET("/order-journey/:orderId", h.OrderJourney)
	e.GET("/order-journey/:orderId/html", h.OrderJourneyHTML)

	e.GET("/metrics", h.Metrics)
	e.GET("/metrics/orders", h.OrderMetrics)
	e.GET("/metrics/drinks", h.DrinkMetrics)
	e.GET("/metrics/modifiers", h.ModifierMetrics)
	e.POST("/metrics/reset", h.ResetMetrics)
}

type errorResponse struct {
	Message string `json:"message"`
}

// userID resolves the caller identity from the userId query parameter or the
// X-User-Id header.
func userID(c echo.Context) string {
	if id := c.QueryParam("userId"); id != "" {
		return id
	}
	return c.Request().Header.Get("X-User-Id")
}

// mapError translates domain errors to HTTP responses.
func mapError(c echo.Context, err error) error {
	var selErr *order.DrinkSelectionError
	switch {
	case errors.As(err, &selErr):
		return c.JSON(http.StatusBadRequest, errorResponse{Message: selErr.Error()})
	case errors.Is(err, coupon.ErrInvalidCode):
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "invalid code"})
	case errors.Is(err, coupon.ErrMissingEventConfig), errors.Is(err, config.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Message: "event not found"})
	case errors.Is(err, order.ErrNotFound), errors.Is(err, journey.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Message: "order not found"})
	case errors.Is(err, order.ErrOwnerMismatch):
		return c.JSON(http.StatusForbidden, errorResponse{Message: "not your order"})
	case errors.Is(err, order.ErrInvalidState):
		return c.JSON(http.StatusConflict, errorResponse{Message: "order cannot be submitted"})
	default:
		return c.JSON(http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}
