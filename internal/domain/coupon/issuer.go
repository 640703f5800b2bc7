package coupon

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/lithammer/shortuuid/v4"
	"go.uber.org/zap"

	"github.com/xenking/presso/internal/domain/config"
	"github.com/xenking/presso/internal/eventbus"
)

const (
	// DefaultWindowDuration is how long one redemption code stays valid.
	DefaultWindowDuration = 5 * time.Minute

	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength   = 10
)

// Issuer creates and redeems time-windowed redemption codes. Within one
// window issuance is idempotent: every call returns the same code until the
// window rolls over.
type Issuer struct {
	windows Repository
	config  config.Repository
	bus     *eventbus.Bus

	window time.Duration
	now    func() time.Time
	code   func() string
}

// NewIssuer creates an Issuer backed by the given repositories and bus.
func NewIssuer(windows Repository, cfg config.Repository, bus *eventbus.Bus) *Issuer {
	return &Issuer{
		windows: windows,
		config:  cfg,
		bus:     bus,
		window:  DefaultWindowDuration,
		now:     time.Now,
		code:    newCode,
	}
}

// SetWindowDuration overrides the default window duration. Zero and negative
// values are ignored.
func (i *Issuer) SetWindowDuration(d time.Duration) {
	if d > 0 {
		i.window = d
	}
}

// Issue returns the coupon window for the event's current time bucket,
// creating it when it does not exist yet. The new window is seeded with the
// event's drinksPerBarcode token budget and a freshly generated code.
func (i *Issuer) Issue(ctx context.Context, eventID string) (*Window, error) {
	cfg, err := i.config.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrMissingEventConfig
		}
		return nil, errors.Wrap(err, "load event config")
	}

	now := i.now()
	windowID := now.UnixMilli() / i.window.Milliseconds()
	key := windowKey(eventID, windowID)

	w, err := i.windows.Get(ctx, key)
	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, ErrWindowNotFound):
	default:
		return nil, errors.Wrap(err, "load window")
	}

	start := time.UnixMilli(windowID * i.window.Milliseconds())
	w = &Window{
		Key:             key,
		EventID:         eventID,
		WindowID:        windowID,
		Code:            i.code(),
		AvailableTokens: cfg.DrinksPerBarcode,
		Start:           start,
		End:             start.Add(i.window - time.Millisecond),
	}
	if err := i.windows.Put(ctx, w); err != nil {
		return nil, errors.Wrap(err, "store window")
	}

	zctx.From(ctx).Info("coupon window created",
		zap.String("key", key),
		zap.Int("availableTokens", w.AvailableTokens),
	)
	return w, nil
}

// Redeem validates code against the event's current window, spends one token
// and mints a new order, publishing NewOrder on success.
//
// A missing window or mismatched code yields ErrInvalidCode regardless of
// token availability. An exhausted window yields ErrNoTokens; available
// tokens never go below zero.
func (i *Issuer) Redeem(ctx context.Context, eventID, code, userID string) (string, error) {
	windowID := i.now().UnixMilli() / i.window.Milliseconds()
	key := windowKey(eventID, windowID)

	w, err := i.windows.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrWindowNotFound) {
			return "", ErrInvalidCode
		}
		return "", errors.Wrap(err, "load window")
	}
	if code != w.Code {
		return "", ErrInvalidCode
	}
	if w.AvailableTokens < 1 {
		return "", ErrNoTokens
	}

	w.AvailableTokens--
	if err := i.windows.SetTokens(ctx, key, w.AvailableTokens); err != nil {
		return "", errors.Wrap(err, "spend token")
	}

	orderID := shortuuid.New()

	zctx.From(ctx).Info("order minted",
		zap.String("orderId", orderID),
		zap.String("userId", userID),
		zap.Int("availableTokens", w.AvailableTokens),
	)

	i.bus.Publish(ctx, eventbus.Event{
		Type:   eventbus.TopicNewOrder,
		Source: eventbus.Source,
		Detail: eventbus.NewOrderDetail{
			OrderID: orderID,
			UserID:  userID,
			EventID: eventID,
			Window: eventbus.WindowSnapshot{
				Key:             w.Key,
				EventID:         w.EventID,
				Code:            w.Code,
				AvailableTokens: w.AvailableTokens,
				Start:           w.Start,
				End:             w.End,
			},
			Message: "new order created from redeemed code",
		},
	})

	return orderID, nil
}

func windowKey(eventID string, windowID int64) string {
	return fmt.Sprintf("%s-%d", eventID, windowID)
}

// newCode generates a random uppercase alphanumeric redemption code.
func newCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand does not fail on supported platforms
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}
