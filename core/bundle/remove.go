package bundle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Repository interface {
	GetCart(ctx context.Context, id string, fresh bool) (cart.Cart, error)
	DeleteLineItem(ctx context.Context, id, itemID string) (cart.Cart, error)
}

type Policy struct {
	Retries     uint64
	Interval    time.Duration
	Concurrency int
}

var ErrNotFound = failure.New(failure.NotFound, "bundle_not_found", "bundle not found")

// Remover deletes a bundle as one logical operation: children first, then the
// parent, re-reading the cart until no member is left.
type Remover struct {
	log    logrus.FieldLogger
	repo   Repository
	policy Policy
}

func NewRemover(log logrus.FieldLogger, repo Repository, policy Policy) *Remover {
	if policy.Interval <= 0 {
		policy.Interval = 100 * time.Millisecond
	}
	if policy.Retries == 0 {
		policy.Retries = 4
	}
	if policy.Concurrency <= 0 {
		policy.Concurrency = 4
	}
	return &Remover{log: log, repo: repo, policy: policy}
}

// RemoveBundle returns the cart once every member of the bundle is confirmed
// gone. When retries run out the error is degraded and lists the survivors;
// calling again resumes the removal.
func (r *Remover) RemoveBundle(ctx context.Context, cartID, bundleID string) (cart.Cart, error) {
	c, err := r.repo.GetCart(ctx, cartID, true)
	if err != nil {
		return cart.Cart{}, fmt.Errorf("fetching cart[%s]: %w", cartID, err)
	}

	remaining := Members(c.Items, bundleID)
	if len(remaining) == 0 {
		return cart.Cart{}, ErrNotFound
	}

	log := r.log.WithFields(logrus.Fields{"cart_id": cartID, "bundle_id": bundleID})

	var b backoff.BackOff = backoff.NewExponentialBackOff()
	b.(*backoff.ExponentialBackOff).InitialInterval = r.policy.Interval
	b = backoff.WithContext(backoff.WithMaxRetries(b, r.policy.Retries), ctx)

	round := 0
	op := func() error {
		round++
		roundErr := r.deleteRound(ctx, cartID, remaining)
		if roundErr != nil {
			log.Warnf("bundle removal round %d: %v", round, roundErr)
		}

		cur, err := r.repo.GetCart(ctx, cartID, true)
		if err != nil {
			if errors.Is(err, failure.ErrCartNotFound) {
				return backoff.Permanent(err)
			}
			return fmt.Errorf("confirming removal: %w", err)
		}

		c = cur
		remaining = Members(cur.Items, bundleID)
		if len(remaining) > 0 {
			if roundErr != nil {
				return fmt.Errorf("%d bundle items left after round %d: %w", len(remaining), round, roundErr)
			}
			return fmt.Errorf("%d bundle items left after round %d", len(remaining), round)
		}
		return nil
	}

	if err := backoff.Retry(op, b); err != nil {
		if len(remaining) == 0 {
			return cart.Cart{}, fmt.Errorf("removing bundle[%s]: %w", bundleID, err)
		}
		left := make(map[string]string, len(remaining))
		for _, id := range ids(remaining) {
			left[id] = "still in cart"
		}
		fe := failure.Wrap(err, failure.Degraded, "bundle_partially_removed",
			fmt.Sprintf("bundle partially removed, items left: %s", strings.Join(ids(remaining), ", ")))
		return c, fe.WithFields(left)
	}

	log.WithField("rounds", round).Info("bundle removed")
	return c, nil
}

// deleteRound never deletes a parent while one of its children failed to go,
// so a partial failure can not leave orphans behind.
func (r *Remover) deleteRound(ctx context.Context, cartID string, items []cart.LineItem) error {
	var children, parents []cart.LineItem
	for _, it := range items {
		if it.Metadata.BundleID != "" {
			parents = append(parents, it)
			continue
		}
		children = append(children, it)
	}

	if err := r.deleteAll(ctx, cartID, children); err != nil {
		return err
	}
	return r.deleteAll(ctx, cartID, parents)
}

func (r *Remover) deleteAll(ctx context.Context, cartID string, items []cart.LineItem) error {
	var (
		mu   sync.Mutex
		merr *multierror.Error
		g    errgroup.Group
	)
	g.SetLimit(r.policy.Concurrency)

	for _, it := range items {
		it := it
		g.Go(func() error {
			if _, err := r.repo.DeleteLineItem(ctx, cartID, it.ID); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, fmt.Errorf("deleting item[%s]: %w", it.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return merr.ErrorOrNil()
}
