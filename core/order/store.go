package order

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("order not found")

// ErrExists is returned by Save when the cart already has an order.
var ErrExists = errors.New("cart already has an order")

type Store interface {
	Save(ctx context.Context, o Order) error
	ByCart(ctx context.Context, cartID string) (Order, error)
	ByID(ctx context.Context, id string) (Order, error)
}

type MemoryStore struct {
	mu     sync.Mutex
	byCart map[string]Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byCart: make(map[string]Order)}
}

func (m *MemoryStore) Save(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byCart[o.CartID]; ok {
		return ErrExists
	}
	m.byCart[o.CartID] = o
	return nil
}

func (m *MemoryStore) ByCart(_ context.Context, cartID string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byCart[cartID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *MemoryStore) ByID(_ context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byCart {
		if o.ID == id {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}
