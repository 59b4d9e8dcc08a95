package cart

import "context"

// Repository is the commerce backend that owns the cart aggregate. Every read
// may be stale; fresh=true bypasses any HTTP cache between the core and the
// backend and is required before payment-affecting decisions.
type Repository interface {
	CreateCart(ctx context.Context, regionID string) (Cart, error)
	GetCart(ctx context.Context, id string, fresh bool) (Cart, error)
	UpdateCart(ctx context.Context, id string, up Update) (Cart, error)
	AddLineItem(ctx context.Context, id string, it ItemNew) (Cart, error)
	UpdateLineItem(ctx context.Context, id, itemID string, up ItemUp) (Cart, error)
	DeleteLineItem(ctx context.Context, id, itemID string) (Cart, error)
	AddShippingMethod(ctx context.Context, id string, sm ShippingNew) (Cart, error)
	CreatePaymentSession(ctx context.Context, id string, ps SessionNew) (Cart, error)
	UpdatePaymentSession(ctx context.Context, id, sessionID string, up SessionUp) (Cart, error)
	Complete(ctx context.Context, id string) (Completion, error)
}
