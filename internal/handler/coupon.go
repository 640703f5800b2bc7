package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/labstack/echo/v4"

	"github.com/xenking/presso/internal/domain/coupon"
)

type codeResponse struct {
	EventID         string `json:"eventId"`
	Code            string `json:"bucket"`
	AvailableTokens int    `json:"availableTokens"`
	Start           int64  `json:"startTS"`
	End             int64  `json:"endTS"`
}

type redeemResponse struct {
	OrderID string `json:"orderId,omitempty"`
	Message string `json:"message,omitempty"`
}

// IssueCode handles GET /qr-code: the current redemption code for the event,
// creating the window lazily.
func (h *Handler) IssueCode(c echo.Context) error {
	eventID := c.QueryParam("eventId")
	if eventID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "eventId is required"})
	}

	w, err := h.issuer.Issue(c.Request().Context(), eventID)
	if err != nil {
		return mapError(c, err)
	}

	return c.JSON(http.StatusOK, codeResponse{
		EventID:         w.EventID,
		Code:            w.Code,
		AvailableTokens: w.AvailableTokens,
		Start:           w.Start.UnixMilli(),
		End:             w.End.UnixMilli(),
	})
}

// RedeemCode handles POST /qr-code: spend one token from the current window
// and mint a new order. An exhausted window is a normal outcome, reported
// with 200 and no order id.
func (h *Handler) RedeemCode(c echo.Context) error {
	eventID := c.QueryParam("eventId")
	code := c.QueryParam("token")
	uid := userID(c)
	if eventID == "" || code == "" || uid == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "eventId, token and userId are required"})
	}

	orderID, err := h.issuer.Redeem(c.Request().Context(), eventID, code, uid)
	if err != nil {
		if errors.Is(err, coupon.ErrNoTokens) {
			return c.JSON(http.StatusOK, redeemResponse{Message: "no drinks left for this code"})
		}
		return mapError(c, err)
	}

	return c.JSON(http.StatusOK, redeemResponse{OrderID: orderID})
}
