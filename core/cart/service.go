package cart

import (
	"context"
	"fmt"

	"github.com/irsalhamdi/storefront-checkout/core/failure"
	"github.com/irsalhamdi/storefront-checkout/core/invalidate"
	"github.com/sirupsen/logrus"
)

type Invalidator interface {
	Invalidate(ctx context.Context, domain invalidate.Domain, id string)
}

// BoundSnapshots exposes the snapshot the cart's payment session was bound to.
type BoundSnapshots interface {
	BoundSnapshot(ctx context.Context, cartID string) (Snapshot, bool, error)
}

type BundleRemover interface {
	RemoveBundle(ctx context.Context, cartID, bundleID string) (Cart, error)
}

// Mutation is the outcome of an accepted cart change. Stale is set when the
// change invalidated the snapshot the payment session was bound to.
type Mutation struct {
	Cart     Cart     `json:"cart"`
	Snapshot Snapshot `json:"snapshot"`
	Stale    bool     `json:"payment_session_stale"`
}

// Service is the single entry point for cart mutations. Each accepted change
// recomputes the snapshot and invalidates the carts partition.
type Service struct {
	log     logrus.FieldLogger
	repo    Repository
	bound   BoundSnapshots
	bundles BundleRemover
	inval   Invalidator
}

func NewService(log logrus.FieldLogger, repo Repository, bound BoundSnapshots, bundles BundleRemover, inval Invalidator) *Service {
	return &Service{
		log:     log,
		repo:    repo,
		bound:   bound,
		bundles: bundles,
		inval:   inval,
	}
}

func (s *Service) Get(ctx context.Context, id string) (Cart, error) {
	c, err := s.repo.GetCart(ctx, id, false)
	if err != nil {
		return Cart{}, fmt.Errorf("fetching cart[%s]: %w", id, err)
	}
	return c, nil
}

func (s *Service) Create(ctx context.Context, regionID string) (Cart, error) {
	c, err := s.repo.CreateCart(ctx, regionID)
	if err != nil {
		return Cart{}, fmt.Errorf("creating cart in region[%s]: %w", regionID, err)
	}
	s.inval.Invalidate(ctx, invalidate.Carts, c.ID)
	return c, nil
}

func (s *Service) Update(ctx context.Context, id string, up Update) (Mutation, error) {
	return s.mutate(ctx, id, "update", func() (Cart, error) {
		return s.repo.UpdateCart(ctx, id, up)
	})
}

func (s *Service) AddItem(ctx context.Context, id string, it ItemNew) (Mutation, error) {
	return s.mutate(ctx, id, "add item", func() (Cart, error) {
		return s.repo.AddLineItem(ctx, id, it)
	})
}

func (s *Service) UpdateItem(ctx context.Context, id, itemID string, up ItemUp) (Mutation, error) {
	return s.mutate(ctx, id, "update item", func() (Cart, error) {
		return s.repo.UpdateLineItem(ctx, id, itemID, up)
	})
}

// RemoveItem deletes a line item. Removing a bundle parent removes the whole
// bundle; a bundle child cannot be removed on its own unless it is orphaned.
func (s *Service) RemoveItem(ctx context.Context, id, itemID string) (Mutation, error) {
	c, err := s.repo.GetCart(ctx, id, true)
	if err != nil {
		return Mutation{}, fmt.Errorf("fetching cart[%s]: %w", id, err)
	}

	it, ok := c.Item(itemID)
	if !ok {
		return Mutation{}, failure.New(failure.NotFound, "line_item_not_found", "line item not found")
	}

	switch {
	case it.Metadata.BundleID != "":
		return s.RemoveBundle(ctx, id, it.Metadata.BundleID)

	case it.Metadata.BundledBy != "" && hasParent(c, it.Metadata.BundledBy):
		err := failure.New(failure.Validation, "bundle_child", "bundle items can only be removed with their bundle")
		return Mutation{}, err.WithFields(map[string]string{"item_id": "belongs to bundle " + it.Metadata.BundledBy})
	}

	return s.mutate(ctx, id, "remove item", func() (Cart, error) {
		return s.repo.DeleteLineItem(ctx, id, itemID)
	})
}

func hasParent(c Cart, bundleID string) bool {
	for _, it := range c.Items {
		if it.Metadata.BundleID == bundleID {
			return true
		}
	}
	return false
}

func (s *Service) RemoveBundle(ctx context.Context, id, bundleID string) (Mutation, error) {
	return s.mutate(ctx, id, "remove bundle", func() (Cart, error) {
		return s.bundles.RemoveBundle(ctx, id, bundleID)
	})
}

func (s *Service) SelectShipping(ctx context.Context, id string, sm ShippingNew) (Mutation, error) {
	return s.mutate(ctx, id, "select shipping", func() (Cart, error) {
		return s.repo.AddShippingMethod(ctx, id, sm)
	})
}

func (s *Service) mutate(ctx context.Context, id, op string, fn func() (Cart, error)) (Mutation, error) {
	c, err := fn()
	if err != nil {
		return Mutation{}, fmt.Errorf("%s on cart[%s]: %w", op, id, err)
	}

	m := Mutation{Cart: c, Snapshot: TakeSnapshot(c)}

	bound, ok, err := s.bound.BoundSnapshot(ctx, id)
	switch {
	case err != nil:
		s.log.WithField("cart_id", id).Warnf("loading bound snapshot: %v", err)
	case ok:
		m.Stale = HasChanged(bound, m.Snapshot)
	}

	s.inval.Invalidate(ctx, invalidate.Carts, id)

	s.log.WithFields(logrus.Fields{
		"cart_id": id,
		"op":      op,
		"total":   c.Total,
		"stale":   m.Stale,
	}).Info("cart mutated")

	return m, nil
}
