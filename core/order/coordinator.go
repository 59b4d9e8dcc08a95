package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
	"github.com/irsalhamdi/storefront-checkout/core/flight"
	"github.com/irsalhamdi/storefront-checkout/core/invalidate"
	"github.com/sirupsen/logrus"
)

// Settler confirms the cart's payment before it is completed.
type Settler interface {
	Settle(ctx context.Context, c cart.Cart) (cart.Cart, error)
}

var ErrRejected = failure.New(failure.Backend, "completion_rejected", "the backend did not complete the cart")

// Coordinator places the order of a cart exactly once.
type Coordinator struct {
	log     logrus.FieldLogger
	repo    cart.Repository
	locker  flight.Locker
	settler Settler
	store   Store
	inval   cart.Invalidator
}

func NewCoordinator(log logrus.FieldLogger, repo cart.Repository, locker flight.Locker, settler Settler, store Store, inval cart.Invalidator) *Coordinator {
	return &Coordinator{
		log:     log,
		repo:    repo,
		locker:  locker,
		settler: settler,
		store:   store,
		inval:   inval,
	}
}

// Complete settles the payment and completes the cart. Calling it again for a
// completed cart returns the same order. The work is detached from ctx's
// cancellation: once started, the lock is held until the backend answers.
func (co *Coordinator) Complete(ctx context.Context, cartID string) (Result, error) {
	release, err := co.locker.TryAcquire(ctx, cartID)
	if err != nil {
		return Result{}, err
	}
	defer release()
	ctx = context.WithoutCancel(ctx)

	log := co.log.WithField("cart_id", cartID)

	o, err := co.store.ByCart(ctx, cartID)
	switch {
	case err == nil:
		log.WithField("order_id", o.ID).Info("completion replayed")
		return Result{Order: o, Replayed: true}, nil
	case !errors.Is(err, ErrNotFound):
		return Result{}, fmt.Errorf("looking up order of cart[%s]: %w", cartID, err)
	}

	c, err := co.repo.GetCart(ctx, cartID, true)
	if err != nil {
		return Result{}, fmt.Errorf("fetching cart[%s]: %w", cartID, err)
	}

	if !c.Completed() && !c.PaidByGiftCard() {
		if c, err = co.settler.Settle(ctx, c); err != nil {
			return Result{}, fmt.Errorf("settling payment: %w", err)
		}
	}

	comp, err := co.repo.Complete(ctx, cartID)
	if err != nil {
		return Result{}, fmt.Errorf("completing cart[%s]: %w", cartID, err)
	}
	if comp.Type != cart.CompletionOrder {
		log.WithField("message", comp.Message).Warn("completion rejected")
		fields := map[string]string{}
		if comp.Message != "" {
			fields["backend"] = comp.Message
		}
		return Result{}, ErrRejected.WithFields(fields)
	}

	o = Order{
		ID:        comp.OrderID,
		CartID:    cartID,
		DisplayID: comp.DisplayID,
		Total:     c.Total,
		Currency:  c.CurrencyCode,
		CreatedAt: time.Now().UTC(),
	}

	if err := co.store.Save(ctx, o); err != nil {
		if !errors.Is(err, ErrExists) {
			return Result{}, fmt.Errorf("recording order[%s]: %w", o.ID, err)
		}
		if o, err = co.store.ByCart(ctx, cartID); err != nil {
			return Result{}, fmt.Errorf("reading recorded order: %w", err)
		}
	}

	co.inval.Invalidate(ctx, invalidate.Orders, o.ID)
	co.inval.Invalidate(ctx, invalidate.Carts, cartID)

	log.WithFields(logrus.Fields{"order_id": o.ID, "display_id": o.DisplayID}).Info("cart completed")
	return Result{Order: o}, nil
}

func (co *Coordinator) Order(ctx context.Context, id string) (Order, error) {
	o, err := co.store.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, failure.Wrap(err, failure.NotFound, "order_not_found", "order not found")
		}
		return Order{}, err
	}
	return o, nil
}
