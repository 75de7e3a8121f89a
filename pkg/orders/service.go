package orders

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bytebites/bytebites-core/pkg/auth"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Limits on a placed order.
const (
	MaxOrderLines   = 50
	MaxItemQuantity = 99
)

// PlaceOrderRequest is the body of POST /api/orders.
type PlaceOrderRequest struct {
	RestaurantID    string        `json:"restaurantId"`
	Items           []ItemRequest `json:"orderItems"`
	DeliveryAddress string        `json:"deliveryAddress"`
}

// ItemRequest is one requested line.
type ItemRequest struct {
	MenuItemID string `json:"menuItemId"`
	Quantity   int    `json:"quantity"`
}

// Validate checks the request shape before any lookup.
func (r *PlaceOrderRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.RestaurantID) == "":
		return sserr.New(sserr.CodeValidationRequired, "Restaurant ID is required")
	case len(r.Items) == 0:
		return sserr.New(sserr.CodeValidationRequired, "Order must contain at least one item")
	case len(r.Items) > MaxOrderLines:
		return sserr.Newf(sserr.CodeValidation, "Order must not contain more than %d items", MaxOrderLines)
	case strings.TrimSpace(r.DeliveryAddress) == "":
		return sserr.New(sserr.CodeValidationRequired, "Delivery address is required")
	}
	for _, it := range r.Items {
		if it.MenuItemID == "" {
			return sserr.New(sserr.CodeValidationRequired, "Menu item ID is required")
		}
		if it.Quantity <= 0 || it.Quantity > MaxItemQuantity {
			return sserr.Newf(sserr.CodeValidation, "Quantity must be between 1 and %d for menu item: %s", MaxItemQuantity, it.MenuItemID)
		}
	}
	return nil
}

// Service implements the order operations. Every method takes the caller's
// identity explicitly and applies the ownership rules itself; route-level
// role checks happen in the handler.
type Service struct {
	store   Store
	catalog Catalog
	now     func() time.Time
	logger  *slog.Logger
}

// NewService returns a Service. now and logger may be nil.
func NewService(store Store, catalog Catalog, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, catalog: catalog, now: now, logger: logger}
}

// Place creates a pending order for id with prices from the catalog.
func (s *Service) Place(ctx context.Context, id auth.Identity, req PlaceOrderRequest) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	restaurant, err := s.catalog.Restaurant(ctx, req.RestaurantID)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(req.Items))
	for _, it := range req.Items {
		m, err := s.catalog.MenuItem(ctx, restaurant.ID, it.MenuItemID)
		if err != nil {
			return nil, err
		}
		items = append(items, Item{MenuItemID: m.ID, Name: m.Name, Quantity: it.Quantity, UnitPriceCents: m.PriceCents})
	}

	o, err := NewOrder(id.Subject, restaurant, strings.TrimSpace(req.DeliveryAddress), items, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "order placed",
		"order_id", o.ID,
		"restaurant_id", o.RestaurantID,
		"total_cents", o.TotalCents,
	)
	return o, nil
}

// Get returns an order visible to id: the customer who placed it, the
// owner of its restaurant, or an admin.
func (s *Service) Get(ctx context.Context, id auth.Identity, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if id.Roles.Has(auth.RoleAdmin) || (id.Roles.Has(auth.RoleCustomer) && o.CustomerEmail == id.Subject) {
		return o, nil
	}
	if id.Roles.Has(auth.RoleRestaurantOwner) {
		owns, err := s.ownsRestaurant(ctx, id, o.RestaurantID)
		if err != nil {
			return nil, err
		}
		if owns {
			return o, nil
		}
	}
	return nil, sserr.Unauthorized("You can only view your own orders or orders for restaurants you own.")
}

// ListMine returns the orders placed by id.
func (s *Service) ListMine(ctx context.Context, id auth.Identity) ([]*Order, error) {
	return s.store.ListByCustomer(ctx, id.Subject)
}

// ListForRestaurant returns a restaurant's orders to its owner or an admin.
func (s *Service) ListForRestaurant(ctx context.Context, id auth.Identity, restaurantID string) ([]*Order, error) {
	if err := s.requireOwnerOrAdmin(ctx, id, restaurantID); err != nil {
		return nil, err
	}
	return s.store.ListByRestaurant(ctx, restaurantID)
}

// UpdateStatus moves an order along its lifecycle on behalf of the
// restaurant owner or an admin.
func (s *Service) UpdateStatus(ctx context.Context, id auth.Identity, orderID string, next Status) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnerOrAdmin(ctx, id, o.RestaurantID); err != nil {
		return nil, err
	}
	if err := s.transition(ctx, o, next); err != nil {
		return nil, err
	}
	return o, nil
}

// Cancel cancels a pending or confirmed order on behalf of the customer who
// placed it or an admin.
func (s *Service) Cancel(ctx context.Context, id auth.Identity, orderID string) error {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !id.Roles.Has(auth.RoleAdmin) && o.CustomerEmail != id.Subject {
		return sserr.Unauthorized("Customers can only cancel their own orders.")
	}
	return s.transition(ctx, o, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, o *Order, next Status) error {
	from := o.Status
	if err := o.Transition(next, s.now()); err != nil {
		return err
	}
	if err := s.store.UpdateStatus(ctx, o, from); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "order status changed", "order_id", o.ID, "from", string(from), "to", string(next))
	return nil
}

func (s *Service) requireOwnerOrAdmin(ctx context.Context, id auth.Identity, restaurantID string) error {
	if id.Roles.Has(auth.RoleAdmin) {
		return nil
	}
	owns, err := s.ownsRestaurant(ctx, id, restaurantID)
	if err != nil {
		return err
	}
	if !owns {
		return sserr.Unauthorized("Restaurant owners can only manage orders for restaurants they own.")
	}
	return nil
}

func (s *Service) ownsRestaurant(ctx context.Context, id auth.Identity, restaurantID string) (bool, error) {
	if !id.Roles.Has(auth.RoleRestaurantOwner) {
		return false, nil
	}
	r, err := s.catalog.Restaurant(ctx, restaurantID)
	if sserr.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.EqualFold(r.OwnerEmail, id.Subject), nil
}
