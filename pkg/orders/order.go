// Package orders is the order service: the reference downstream consumer of
// the identity asserted by the gateway.
//
// Order Model:
//
// The [Order] type is a customer's order at one restaurant. Prices are
// copied from the [Catalog] when the order is placed, so later menu
// changes never alter an existing order.
//
// An Order flows through a fixed lifecycle:
//
//	PENDING → CONFIRMED → PREPARING → DELIVERED
//	PENDING, CONFIRMED  → CANCELLED
//
// DELIVERED and CANCELLED are terminal. [Status.CanTransitionTo] is the only
// authority on which moves are legal; the HTTP handlers never compare
// statuses themselves.
package orders

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	// StatusPending is the initial state set by [NewOrder].
	StatusPending Status = "PENDING"

	// StatusConfirmed indicates the restaurant accepted the order.
	StatusConfirmed Status = "CONFIRMED"

	// StatusPreparing indicates the kitchen started on the order. It can
	// no longer be cancelled.
	StatusPreparing Status = "PREPARING"

	// StatusDelivered is terminal.
	StatusDelivered Status = "DELIVERED"

	// StatusCancelled is terminal.
	StatusCancelled Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusDelivered},
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", sserr.Newf(sserr.CodeValidationFormat, "unknown order status %q", s)
	}
	return st, nil
}

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo reports whether an order in s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// Item is one line of an order.
type Item struct {
	MenuItemID string `json:"menuItemId"`
	Name       string `json:"itemName"`
	Quantity   int    `json:"quantity"`

	// UnitPriceCents is the menu price when the order was placed.
	UnitPriceCents int64 `json:"pricePerUnitCents"`
}

// Order is a placed order.
type Order struct {
	// ID is a UUID v4 assigned by [NewOrder].
	ID string `json:"orderId"`

	// CustomerEmail is the subject of the identity that placed the order.
	CustomerEmail string `json:"customerEmail"`

	RestaurantID   string `json:"restaurantId"`
	RestaurantName string `json:"restaurantName"`

	DeliveryAddress string `json:"deliveryAddress"`

	Items []Item `json:"orderItems"`

	// TotalCents is the sum of quantity × unit price over Items.
	TotalCents int64 `json:"totalAmountCents"`

	Status Status `json:"orderStatus"`

	CreatedAt time.Time `json:"orderDate"`
	UpdatedAt time.Time `json:"lastUpdated"`
}

// NewOrder builds a pending order and computes its total.
func NewOrder(customer string, restaurant *Restaurant, address string, items []Item, now time.Time) (*Order, error) {
	now = now.UTC()
	o := &Order{
		ID:              uuid.NewString(),
		CustomerEmail:   customer,
		RestaurantID:    restaurant.ID,
		RestaurantName:  restaurant.Name,
		DeliveryAddress: address,
		Items:           items,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, it := range items {
		o.TotalCents += int64(it.Quantity) * it.UnitPriceCents
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks required fields and the status.
func (o *Order) Validate() error {
	switch {
	case o.ID == "":
		return sserr.New(sserr.CodeValidationRequired, "order id is required")
	case o.CustomerEmail == "":
		return sserr.New(sserr.CodeValidationRequired, "order customer is required")
	case o.RestaurantID == "":
		return sserr.New(sserr.CodeValidationRequired, "restaurant id is required")
	case strings.TrimSpace(o.DeliveryAddress) == "":
		return sserr.New(sserr.CodeValidationRequired, "delivery address is required")
	case len(o.Items) == 0:
		return sserr.New(sserr.CodeValidationRequired, "order must contain at least one item")
	case !o.Status.Valid():
		return sserr.Newf(sserr.CodeValidationFormat, "invalid order status %q", o.Status)
	case o.CreatedAt.IsZero() || o.UpdatedAt.IsZero():
		return sserr.New(sserr.CodeValidationRequired, "order timestamps are required")
	}
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			return sserr.Newf(sserr.CodeValidation, "quantity must be positive for menu item %s", it.MenuItemID)
		}
	}
	return nil
}

// IsTerminal reports whether the order is delivered or cancelled.
func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// Transition moves the order to next. It fails with CONF_003 when the
// lifecycle does not allow the move.
func (o *Order) Transition(next Status, now time.Time) error {
	if !next.Valid() {
		return sserr.Newf(sserr.CodeValidationFormat, "invalid order status %q", next)
	}
	if !o.Status.CanTransitionTo(next) {
		return sserr.Newf(sserr.CodeInvalidTransition, "cannot move order from %s to %s", o.Status, next).
			WithDetails(map[string]any{"order_id": o.ID, "from": string(o.Status), "to": string(next)})
	}
	o.Status = next
	o.UpdatedAt = now.UTC()
	return nil
}

// clone returns a deep copy.
func (o *Order) clone() *Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	return &c
}
