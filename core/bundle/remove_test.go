package bundle

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/irsalhamdi/storefront-checkout/commerce"
	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
	"github.com/sirupsen/logrus"
)

func newRemoveEnv(t *testing.T, policy Policy) (*Remover, *commerce.Memory, cart.Cart) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	mem := commerce.NewMemory(commerce.DefaultCatalog())
	ctx := context.Background()

	c, err := mem.CreateCart(ctx, "reg_mx")
	if err != nil {
		t.Fatalf("creating cart: %v", err)
	}

	adds := []cart.ItemNew{
		{VariantID: "variant_brush", Quantity: 1},
		{VariantID: "variant_starter_kit", Quantity: 1, Metadata: cart.Metadata{BundleID: "kit"}},
		{VariantID: "variant_shampoo", Quantity: 1, Metadata: cart.Metadata{BundledBy: "kit"}},
		{VariantID: "variant_conditioner", Quantity: 1, Metadata: cart.Metadata{BundledBy: "kit"}},
	}
	for _, it := range adds {
		if c, err = mem.AddLineItem(ctx, c.ID, it); err != nil {
			t.Fatalf("adding %s: %v", it.VariantID, err)
		}
	}

	return NewRemover(log, mem, policy), mem, c
}

func TestRemoveBundleRetriesFailedChild(t *testing.T) {
	rm, mem, c := newRemoveEnv(t, Policy{Retries: 3, Interval: time.Millisecond})
	conditioner := c.Items[3].ID
	parent := c.Items[1].ID

	var (
		mu       sync.Mutex
		failures = 1
		deleted  []string
	)
	mem.DeleteFault = func(_, itemID string) error {
		mu.Lock()
		defer mu.Unlock()
		if itemID == conditioner && failures > 0 {
			failures--
			return errors.New("connection reset")
		}
		if itemID == parent {
			for _, id := range deleted {
				if id == conditioner {
					return nil
				}
			}
			t.Errorf("parent deleted while a child is still in the cart")
		}
		deleted = append(deleted, itemID)
		return nil
	}

	got, err := rm.RemoveBundle(context.Background(), c.ID, "kit")
	if err != nil {
		t.Fatalf("removing bundle: %v", err)
	}

	if left := Members(got.Items, "kit"); len(left) != 0 {
		t.Fatalf("expected no bundle members left, got %+v", left)
	}
	if len(got.Items) != 1 || got.Items[0].VariantID != "variant_brush" {
		t.Fatalf("expected the regular item to survive, got %+v", got.Items)
	}
}

func TestRemoveBundleExhaustedIsDegraded(t *testing.T) {
	rm, mem, c := newRemoveEnv(t, Policy{Retries: 2, Interval: time.Millisecond})
	conditioner := c.Items[3].ID

	mem.DeleteFault = func(_, itemID string) error {
		if itemID == conditioner {
			return errors.New("backend down")
		}
		return nil
	}

	got, err := rm.RemoveBundle(context.Background(), c.ID, "kit")

	fe, ok := failure.As(err)
	if !ok || fe.Class != failure.Degraded || fe.Reason != "bundle_partially_removed" {
		t.Fatalf("expected degraded partial removal, got %v", err)
	}
	if _, ok := fe.Fields[conditioner]; !ok {
		t.Fatalf("expected the surviving child to be named, got %v", fe.Fields)
	}

	left := Members(got.Items, "kit")
	if len(left) != 2 {
		t.Fatalf("expected the parent and the failing child to stay, got %+v", left)
	}

	mem.DeleteFault = nil
	got, err = rm.RemoveBundle(context.Background(), c.ID, "kit")
	if err != nil {
		t.Fatalf("resuming removal: %v", err)
	}
	if left := Members(got.Items, "kit"); len(left) != 0 {
		t.Fatalf("expected resumed removal to finish, got %+v", left)
	}
}

func TestRemoveBundleUnknown(t *testing.T) {
	rm, _, c := newRemoveEnv(t, Policy{})

	_, err := rm.RemoveBundle(context.Background(), c.ID, "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected bundle not found, got %v", err)
	}
}
