// Package config holds the per-event configuration document: whether the
// shop is accepting orders, the coupon token budget per window, and the
// drink menu used to validate customer submissions.
package config

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no configuration exists for an event.
var ErrNotFound = errors.New("event config not found")

// ModifierGroup is one group of drink options, e.g. "Milk" with options
// "Whole", "Oat", "Skimmed".
type ModifierGroup struct {
	Name    string   `json:"Name"`
	Options []string `json:"Options"`
}

// MenuItem is one orderable drink together with its allowed modifiers.
type MenuItem struct {
	Drink     string          `json:"drink"`
	Modifiers []ModifierGroup `json:"modifiers"`
}

// EventConfig is the live configuration for a single event.
type EventConfig struct {
	EventID          string     `json:"eventId"`
	StoreOpen        bool       `json:"storeOpen"`
	DrinksPerBarcode int        `json:"drinksPerBarcode"`
	Menu             []MenuItem `json:"menu"`
}

// FindDrink returns the menu item for the given drink name, or false when
// the drink is not on the menu.
func (c *EventConfig) FindDrink(drink string) (MenuItem, bool) {
	for _, item := range c.Menu {
		if item.Drink == drink {
			return item, true
		}
	}
	return MenuItem{}, false
}

// AllowsModifier reports whether the modifier is a legal option in any of
// the item's modifier groups.
func (m MenuItem) AllowsModifier(modifier string) bool {
	for _, group := range m.Modifiers {
		for _, opt := range group.Options {
			if opt == modifier {
				return true
			}
		}
	}
	return false
}

// Repository defines persistence operations for event configuration.
type Repository interface {
	Get(ctx context.Context, eventID string) (*EventConfig, error)
	Put(ctx context.Context, cfg *EventConfig) error
	List(ctx context.Context) ([]EventConfig, error)
}
