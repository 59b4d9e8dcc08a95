package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
	"github.com/irsalhamdi/storefront-checkout/core/flight"
	"github.com/irsalhamdi/storefront-checkout/core/invalidate"
	"github.com/sirupsen/logrus"
)

type Config struct {
	MaxRecreate     int
	DefaultProvider string
}

var (
	ErrGiftCardCovered = failure.New(failure.Validation, "gift_card_covered", "the cart is fully covered by gift cards")
	ErrIncomplete      = failure.New(failure.Validation, "payment_incomplete", "the payment still needs customer action")
)

// Bound is the payment state of a cart as seen by the guard.
type Bound struct {
	Cart       cart.Cart            `json:"cart"`
	Session    *cart.PaymentSession `json:"payment_session,omitempty"`
	Snapshot   cart.Snapshot        `json:"snapshot"`
	Validation Validation           `json:"validation"`
	Attempt    int64                `json:"attempt,omitempty"`
	Recreated  int                  `json:"recreated,omitempty"`
}

type Guard struct {
	log       logrus.FieldLogger
	repo      cart.Repository
	locker    flight.Locker
	ledger    Ledger
	providers Providers
	inval     cart.Invalidator
	cfg       Config
}

func NewGuard(log logrus.FieldLogger, repo cart.Repository, locker flight.Locker, ledger Ledger, providers Providers, inval cart.Invalidator, cfg Config) *Guard {
	if cfg.MaxRecreate <= 0 {
		cfg.MaxRecreate = 3
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = ManualID
	}
	return &Guard{
		log:       log,
		repo:      repo,
		locker:    locker,
		ledger:    ledger,
		providers: providers,
		inval:     inval,
		cfg:       cfg,
	}
}

// Bind opens a new provider session for the cart. The previous pending session,
// if any, is superseded by the backend and left with the provider untouched.
func (g *Guard) Bind(ctx context.Context, cartID, providerID string) (Bound, error) {
	release, err := g.locker.TryAcquire(ctx, cartID)
	if err != nil {
		return Bound{}, err
	}
	defer release()

	return g.bind(context.WithoutCancel(ctx), cartID, providerID)
}

func (g *Guard) bind(ctx context.Context, cartID, providerID string) (Bound, error) {
	if providerID == "" {
		providerID = g.cfg.DefaultProvider
	}
	prov, err := g.providers.Get(providerID)
	if err != nil {
		return Bound{}, err
	}

	c, err := g.repo.GetCart(ctx, cartID, true)
	if err != nil {
		return Bound{}, fmt.Errorf("fetching cart[%s]: %w", cartID, err)
	}
	switch {
	case c.Completed():
		return Bound{}, failure.ErrCartCompleted
	case c.PaidByGiftCard():
		return Bound{}, ErrGiftCardCovered
	}

	attempt, err := g.ledger.NextAttempt(ctx, cartID)
	if err != nil {
		return Bound{}, fmt.Errorf("taking payment attempt: %w", err)
	}
	key := IdempotencyKey(cartID, attempt)

	data, err := prov.Initiate(ctx, c, key)
	if err != nil {
		return Bound{}, failure.Wrap(err, failure.Backend, "provider_failed", "payment provider failed")
	}
	data["attempt"] = attempt

	c, err = g.repo.CreatePaymentSession(ctx, cartID, cart.SessionNew{ProviderID: providerID, Data: data})
	if err != nil {
		return Bound{}, fmt.Errorf("creating payment session: %w", err)
	}

	ps := c.PendingSession()
	if ps == nil {
		return Bound{}, failure.New(failure.Integrity, "session_not_created", "backend returned no pending payment session")
	}

	b := Binding{
		CartID:         c.ID,
		SessionID:      ps.ID,
		ProviderID:     providerID,
		Attempt:        attempt,
		IdempotencyKey: key,
		Total:          c.Total,
		CurrencyCode:   c.CurrencyCode,
		RegionID:       c.RegionID,
		BoundAt:        time.Now().UTC(),
	}
	if err := g.ledger.SaveBinding(ctx, b); err != nil {
		return Bound{}, fmt.Errorf("recording binding: %w", err)
	}

	g.inval.Invalidate(ctx, invalidate.Carts, cartID)

	g.log.WithFields(logrus.Fields{
		"cart_id":    cartID,
		"session_id": ps.ID,
		"provider":   providerID,
		"attempt":    attempt,
	}).Info("payment session bound")

	return Bound{
		Cart:       c,
		Session:    ps,
		Snapshot:   b.Snapshot(),
		Validation: Validation{Valid: true},
		Attempt:    attempt,
	}, nil
}

// ValidateCart reads the cart fresh and validates it against its binding.
func (g *Guard) ValidateCart(ctx context.Context, cartID string) (Bound, error) {
	c, err := g.repo.GetCart(ctx, cartID, true)
	if err != nil {
		return Bound{}, fmt.Errorf("fetching cart[%s]: %w", cartID, err)
	}
	bd, _, err := g.inspect(ctx, c)
	return bd, err
}

func (g *Guard) inspect(ctx context.Context, c cart.Cart) (Bound, Binding, error) {
	b, ok, err := g.ledger.Binding(ctx, c.ID)
	if err != nil {
		return Bound{}, Binding{}, fmt.Errorf("loading binding of cart[%s]: %w", c.ID, err)
	}

	bd := Bound{Cart: c}
	if !ok {
		bd.Validation = Validate(c, nil, cart.Snapshot{})
		return bd, Binding{}, nil
	}

	bd.Session = sessionByID(c, b.SessionID)
	bd.Snapshot = b.Snapshot()
	bd.Attempt = b.Attempt
	bd.Validation = Validate(c, bd.Session, bd.Snapshot)
	return bd, b, nil
}

// Ensure returns a cart with a valid session, recreating it when the cart moved
// on. Recreation is bounded; a terminal session is reported, never replaced.
func (g *Guard) Ensure(ctx context.Context, cartID, providerID string) (Bound, error) {
	release, err := g.locker.TryAcquire(ctx, cartID)
	if err != nil {
		return Bound{}, err
	}
	defer release()
	ctx = context.WithoutCancel(ctx)

	for recreated := 0; ; recreated++ {
		bd, err := g.ValidateCart(ctx, cartID)
		if err != nil {
			return Bound{}, err
		}
		bd.Recreated = recreated

		if bd.Validation.Valid || bd.Cart.PaidByGiftCard() {
			return bd, nil
		}
		if !bd.Validation.ShouldRecreate {
			return bd, bd.Validation.Err()
		}
		if recreated == g.cfg.MaxRecreate {
			return bd, failure.Wrap(bd.Validation.Err(), failure.Staleness, failure.ErrRecreateLimit.Reason, failure.ErrRecreateLimit.Message)
		}

		prov := providerID
		if prov == "" && bd.Session != nil {
			prov = bd.Session.ProviderID
		}

		g.log.WithFields(logrus.Fields{
			"cart_id": cartID,
			"reason":  bd.Validation.Reason,
			"round":   recreated + 1,
		}).Info("recreating payment session")

		if _, err := g.bind(ctx, cartID, prov); err != nil {
			return Bound{}, err
		}
	}
}

// Settle confirms the bound session with its provider before the cart is
// completed. The caller holds the cart's lock. A session confirmed earlier,
// here or by the shopper's browser, is accepted as is, so completing again
// after a backend failure does not charge twice. A refunded session stays
// terminal.
func (g *Guard) Settle(ctx context.Context, c cart.Cart) (cart.Cart, error) {
	bd, b, err := g.inspect(ctx, c)
	if err != nil {
		return cart.Cart{}, err
	}

	if !bd.Validation.Valid {
		if bd.Validation.Reason != PaymentFinalized || !Captured(bd.Session) {
			return c, bd.Validation.Err()
		}
		// Finalized is only reported once the session matched the bound
		// snapshot, so the money taken is the money owed.
		if !b.Confirmed {
			if err := g.ledger.MarkConfirmed(ctx, c.ID, bd.Session.ID); err != nil {
				return c, fmt.Errorf("marking confirmation: %w", err)
			}
			g.log.WithFields(logrus.Fields{
				"cart_id":    c.ID,
				"session_id": bd.Session.ID,
			}).Info("payment captured by the provider")
		}
		return c, nil
	}
	if b.Confirmed {
		return c, nil
	}

	prov, err := g.providers.Get(b.ProviderID)
	if err != nil {
		return c, err
	}

	conf, err := prov.Confirm(ctx, *bd.Session, b.IdempotencyKey)
	if err != nil {
		return c, failure.Wrap(err, failure.Backend, "provider_failed", "payment provider failed")
	}

	c, err = g.repo.UpdatePaymentSession(ctx, c.ID, bd.Session.ID, cart.SessionUp{Status: conf.Status, Data: conf.Data})
	if err != nil {
		return cart.Cart{}, fmt.Errorf("recording confirmation: %w", err)
	}
	g.inval.Invalidate(ctx, invalidate.Carts, c.ID)

	log := g.log.WithFields(logrus.Fields{
		"cart_id":    c.ID,
		"session_id": bd.Session.ID,
		"status":     conf.Status,
	})

	switch conf.Status {
	case cart.SessionAuthorized, cart.SessionCaptured:
	case cart.SessionError:
		log.Warn("payment declined")
		return c, failure.New(failure.Staleness, string(PaymentFailed), PaymentFailed.Message())
	default:
		log.Info("payment awaiting customer")
		fields := map[string]string{"status": string(conf.Status)}
		if u, ok := bd.Session.Data["approve_url"].(string); ok {
			fields["approve_url"] = u
		}
		return c, ErrIncomplete.WithFields(fields)
	}

	if err := g.ledger.MarkConfirmed(ctx, c.ID, bd.Session.ID); err != nil {
		return c, fmt.Errorf("marking confirmation: %w", err)
	}
	log.Info("payment confirmed")
	return c, nil
}
