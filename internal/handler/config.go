package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xenking/presso/internal/domain/config"
	"github.com/xenking/presso/internal/eventbus"
)

// GetConfig handles GET /config: the configuration document for one event.
func (h *Handler) GetConfig(c echo.Context) error {
	eventID := c.QueryParam("eventId")
	if eventID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "eventId is required"})
	}

	cfg, err := h.configs.Get(c.Request().Context(), eventID)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// PutConfig handles PUT /config: replace the configuration document and
// announce the change.
func (h *Handler) PutConfig(c echo.Context) error {
	eventID := c.QueryParam("eventId")
	if eventID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "eventId is required"})
	}

	var cfg config.EventConfig
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "invalid request body"})
	}
	cfg.EventID = eventID

	ctx := c.Request().Context()
	if err := h.configs.Put(ctx, &cfg); err != nil {
		return mapError(c, err)
	}

	h.bus.Publish(ctx, eventbus.Event{
		Type:   eventbus.TopicConfigChanged,
		Source: eventbus.Source,
		Detail: eventbus.ConfigChangedDetail{EventID: eventID, NewImage: cfg},
	})
	return c.JSON(http.StatusOK, cfg)
}

// ListConfigs handles GET /config/all.
func (h *Handler) ListConfigs(c echo.Context) error {
	cfgs, err := h.configs.List(c.Request().Context())
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, cfgs)
}
