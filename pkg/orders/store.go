package orders

import (
	"cmp"
	"context"
	"slices"
	"sync"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Store persists orders. Get fails with NF_003 for unknown ids. Lists are
// ordered newest first.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, email string) ([]*Order, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]*Order, error)

	// UpdateStatus saves o's status and update time if the stored status is
	// still from. A concurrent change fails with CONF_001.
	UpdateStatus(ctx context.Context, o *Order, from Status) error
}

func orderNotFound(id string) *sserr.Error {
	return sserr.Newf(sserr.CodeNotFoundOrder, "order not found with id: %s", id)
}

func concurrentUpdate(id string) *sserr.Error {
	return sserr.Conflict("order was modified concurrently").WithDetail("order_id", id)
}

// MemoryStore is an in-process Store. It returns copies so callers never
// share state with it.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]*Order)}
}

func (s *MemoryStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return sserr.Conflict("order already exists").WithDetail("order_id", o.ID)
	}
	s.orders[o.ID] = o.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, orderNotFound(id)
	}
	return o.clone(), nil
}

func (s *MemoryStore) ListByCustomer(_ context.Context, email string) ([]*Order, error) {
	return s.list(func(o *Order) bool { return o.CustomerEmail == email }), nil
}

func (s *MemoryStore) ListByRestaurant(_ context.Context, restaurantID string) ([]*Order, error) {
	return s.list(func(o *Order) bool { return o.RestaurantID == restaurantID }), nil
}

func (s *MemoryStore) list(match func(*Order) bool) []*Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Order, 0)
	for _, o := range s.orders {
		if match(o) {
			out = append(out, o.clone())
		}
	}
	slices.SortFunc(out, func(a, b *Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *MemoryStore) UpdateStatus(_ context.Context, o *Order, from Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return orderNotFound(o.ID)
	}
	if cur.Status != from {
		return concurrentUpdate(o.ID)
	}
	cur.Status = o.Status
	cur.UpdatedAt = o.UpdatedAt
	return nil
}

var _ Store = (*MemoryStore)(nil)
