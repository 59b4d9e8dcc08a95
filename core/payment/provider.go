package payment

import (
	"context"
	"sort"

	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
)

// Provider talks to a payment service. Initiate always opens a brand-new
// provider session; the returned payload is stored on the cart's session as is.
type Provider interface {
	ID() string
	Initiate(ctx context.Context, c cart.Cart, key string) (map[string]any, error)
	Confirm(ctx context.Context, s cart.PaymentSession, key string) (Confirmation, error)
}

// Confirmation is the provider's answer mapped onto the session states. Data
// holds the raw provider fields, "status" among them.
type Confirmation struct {
	Status cart.SessionStatus
	Data   map[string]any
}

type Providers map[string]Provider

func NewProviders(ps ...Provider) Providers {
	m := make(Providers, len(ps))
	for _, p := range ps {
		m[p.ID()] = p
	}
	return m
}

func (ps Providers) Get(id string) (Provider, error) {
	p, ok := ps[id]
	if !ok {
		return nil, failure.ErrUnknownProvider.WithFields(map[string]string{"provider_id": id + " is not enabled"})
	}
	return p, nil
}

func (ps Providers) IDs() []string {
	ids := make([]string, 0, len(ps))
	for id := range ps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

const ManualID = "manual"

// Manual is the system provider: no money moves, confirmation authorizes.
type Manual struct{}

func (Manual) ID() string { return ManualID }

func (Manual) Initiate(_ context.Context, c cart.Cart, key string) (map[string]any, error) {
	return map[string]any{
		"status":          "pending",
		"amount":          c.Total,
		"idempotency_key": key,
	}, nil
}

func (Manual) Confirm(_ context.Context, s cart.PaymentSession, _ string) (Confirmation, error) {
	return Confirmation{
		Status: cart.SessionAuthorized,
		Data:   map[string]any{"status": "authorized"},
	}, nil
}
