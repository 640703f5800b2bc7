package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xenking/presso/internal/observer/metrics"
)

// JourneyStats handles GET /order-journey/stats.
func (h *Handler) JourneyStats(c echo.Context) error {
	stats, err := h.journey.Stats(c.Request().Context())
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// OrderJourney handles GET /order-journey/:orderId: the order's recorded
// lifecycle trail, oldest first.
func (h *Handler) OrderJourney(c echo.Context) error {
	events, err := h.journey.Journey(c.Request().Context(), c.Param("orderId"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

// OrderJourneyHTML handles GET /order-journey/:orderId/html.
func (h *Handler) OrderJourneyHTML(c echo.Context) error {
	page, err := h.journey.RenderHTML(c.Request().Context(), c.Param("orderId"))
	if err != nil {
		return mapError(c, err)
	}
	return c.HTML(http.StatusOK, page)
}

type metricsResponse struct {
	Orders    metrics.OrderMetrics     `json:"orders"`
	Drinks    []metrics.DimensionCount `json:"drinks"`
	Modifiers []metrics.DimensionCount `json:"modifiers"`
	Events    []metrics.RecordedEvent  `json:"recentEvents"`
}

// Metrics handles GET /metrics: the full business-metrics snapshot.
func (h *Handler) Metrics(c echo.Context) error {
	return c.JSON(http.StatusOK, metricsResponse{
		Orders:    h.metrics.Orders(),
		Drinks:    h.metrics.Drinks(),
		Modifiers: h.metrics.Modifiers(),
		Events:    h.metrics.Events("", 100),
	})
}

// OrderMetrics handles GET /metrics/orders.
func (h *Handler) OrderMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.metrics.Orders())
}

// DrinkMetrics handles GET /metrics/drinks.
func (h *Handler) DrinkMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.metrics.Drinks())
}

// ModifierMetrics handles GET /metrics/modifiers.
func (h *Handler) ModifierMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.metrics.Modifiers())
}

// ResetMetrics handles POST /metrics/reset.
func (h *Handler) ResetMetrics(c echo.Context) error {
	h.metrics.Reset()
	return c.NoContent(http.StatusNoContent)
}
