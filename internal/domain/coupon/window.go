// Package coupon implements the coupon issuer: time-windowed,
// capacity-limited redemption codes that gate how many orders may be created
// per window.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for coupon issuance and redemption.
var (
	// ErrInvalidCode is returned when no window exists for the current
	// time bucket or the presented code does not match it.
	ErrInvalidCode = errors.New("invalid code")
	// ErrNoTokens signals the window's token budget is exhausted. This is
	// a normal business outcome, not a failure.
	ErrNoTokens = errors.New("no tokens")
	// ErrMissingEventConfig is returned when the event has no configuration.
	ErrMissingEventConfig = errors.New("missing event config")
)

// Window is one time-bucketed batch of redemption tokens for an event.
// Windows are created lazily on first issuance and become unaddressable
// once their time bucket passes; they are never deleted explicitly.
type Window struct {
	// Key is "{eventId}-{windowId}".
	Key             string
	EventID         string
	WindowID        int64
	Code            string
	AvailableTokens int
	Start           time.Time
	End             time.Time
}

// Repository defines persistence operations for coupon windows.
type Repository interface {
	Get(ctx context.Context, key string) (*Window, error)
	Put(ctx context.Context, w *Window) error
	// SetTokens updates the remaining token count for a window.
	SetTokens(ctx context.Context, key string, tokens int) error
}

// ErrWindowNotFound is returned by Repository.Get when no window exists for
// the key.
var ErrWindowNotFound = errors.New("coupon window not found")
