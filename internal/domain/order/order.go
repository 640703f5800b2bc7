// Package order implements the order manager: the owner of the persisted
// Order entity and the customer/barista actions that drive and react to
// workflow transitions.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrNotFound = errors.New("order not found")
	// ErrOwnerMismatch is returned when the submitting user does not own
	// the order.
	ErrOwnerMismatch = errors.New("order owner mismatch")
	// ErrInvalidState is returned when the order holds no active task token
	// and therefore cannot accept a submission.
	ErrInvalidState = errors.New("order has no active task token")
)

// DrinkSelectionError indicates a submission referencing a drink that is not
// on the event menu, or a modifier that is not a legal option for the drink.
type DrinkSelectionError struct {
	Drink    string
	Modifier string
}

func (e *DrinkSelectionError) Error() string {
	if e.Modifier != "" {
		return fmt.Sprintf("modifier %q is not available for drink %q", e.Modifier, e.Drink)
	}
	return fmt.Sprintf("drink %q is not on the menu", e.Drink)
}

// DrinkSelection is the customer's submitted drink choice.
type DrinkSelection struct {
	UserID    string   `json:"userId"`
	Drink     string   `json:"drink"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// Order is the persisted order entity. It is owned and mutated exclusively
// by the Manager.
type Order struct {
	ID            string
	UserID        string
	EventID       string
	State         string // "{eventId}-CREATED|COMPLETED|CANCELLED|TIMEOUT"
	TaskToken     string
	OrderNumber   int64
	DrinkOrder    *DrinkSelection
	BaristaUserID string
	TS            time.Time
}

// State helpers build the composite "{eventId}-{STATE}" values stored on the
// order and served by the state listing.
func StateCreated(eventID string) string   { return eventID + "-CREATED" }
func StateCompleted(eventID string) string { return eventID + "-COMPLETED" }
func StateCancelled(eventID string) string { return eventID + "-CANCELLED" }
func StateTimeout(eventID string) string   { return eventID + "-TIMEOUT" }

// Repository defines persistence operations for orders.
type Repository interface {
	Put(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	ListByState(ctx context.Context, state string, limit int) ([]Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}
