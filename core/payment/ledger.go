package payment

import (
	"context"
	"sync"
	"time"

	"github.com/irsalhamdi/storefront-checkout/core/cart"
)

// Binding is the record of which provider session a cart is bound to and the
// cart state it was bound against.
type Binding struct {
	CartID         string    `json:"cart_id" db:"cart_id"`
	SessionID      string    `json:"session_id" db:"session_id"`
	ProviderID     string    `json:"provider_id" db:"provider_id"`
	Attempt        int64     `json:"attempt" db:"attempt"`
	IdempotencyKey string    `json:"idempotency_key" db:"idempotency_key"`
	Total          int64     `json:"total" db:"total"`
	CurrencyCode   string    `json:"currency_code" db:"currency_code"`
	RegionID       string    `json:"region_id" db:"region_id"`
	Confirmed      bool      `json:"confirmed" db:"confirmed"`
	BoundAt        time.Time `json:"bound_at" db:"bound_at"`
}

func (b Binding) Snapshot() cart.Snapshot {
	return cart.Snapshot{
		CartID:           b.CartID,
		Total:            b.Total,
		CurrencyCode:     b.CurrencyCode,
		RegionID:         b.RegionID,
		PaymentSessionID: b.SessionID,
	}
}

type Ledger interface {
	// NextAttempt increments and returns the cart's attempt counter.
	NextAttempt(ctx context.Context, cartID string) (int64, error)
	SaveBinding(ctx context.Context, b Binding) error
	Binding(ctx context.Context, cartID string) (Binding, bool, error)
	MarkConfirmed(ctx context.Context, cartID, sessionID string) error
}

// Snapshots exposes the bound snapshots of a ledger to the cart service.
func Snapshots(l Ledger) cart.BoundSnapshots {
	return snapshots{l}
}

type snapshots struct{ l Ledger }

func (s snapshots) BoundSnapshot(ctx context.Context, cartID string) (cart.Snapshot, bool, error) {
	b, ok, err := s.l.Binding(ctx, cartID)
	if err != nil || !ok {
		return cart.Snapshot{}, false, err
	}
	return b.Snapshot(), true, nil
}

type MemoryLedger struct {
	mu       sync.Mutex
	attempts map[string]int64
	bindings map[string]Binding
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		attempts: make(map[string]int64),
		bindings: make(map[string]Binding),
	}
}

func (m *MemoryLedger) NextAttempt(_ context.Context, cartID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[cartID]++
	return m.attempts[cartID], nil
}

func (m *MemoryLedger) SaveBinding(_ context.Context, b Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[b.CartID] = b
	return nil
}

func (m *MemoryLedger) Binding(_ context.Context, cartID string) (Binding, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[cartID]
	return b, ok, nil
}

func (m *MemoryLedger) MarkConfirmed(_ context.Context, cartID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[cartID]
	if !ok || b.SessionID != sessionID {
		return nil
	}
	b.Confirmed = true
	m.bindings[cartID] = b
	return nil
}
