package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/invalidate"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
)

// Webhook applies provider notifications to the cart's sessions so a payment
// finalized outside the checkout flow is seen as terminal by the guard.
type Webhook struct {
	log    logrus.FieldLogger
	repo   cart.Repository
	inval  cart.Invalidator
	stripe *Stripe
}

func NewWebhook(log logrus.FieldLogger, repo cart.Repository, inval cart.Invalidator, s *Stripe) *Webhook {
	return &Webhook{log: log, repo: repo, inval: inval, stripe: s}
}

func (wh *Webhook) Apply(ctx context.Context, ev stripe.Event) error {
	log := wh.log.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type})

	var (
		pi     stripe.PaymentIntent
		status cart.SessionStatus
		raw    string
	)

	switch ev.Type {
	case "payment_intent.succeeded",
		"payment_intent.payment_failed",
		"payment_intent.canceled",
		"payment_intent.requires_action",
		"payment_intent.amount_capturable_updated":
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return fmt.Errorf("decoding payment intent: %w", err)
		}
		status, raw = stripeStatus(pi.Status), string(pi.Status)
		if ev.Type == "payment_intent.payment_failed" {
			status = cart.SessionError
		}

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return fmt.Errorf("decoding charge: %w", err)
		}
		if ch.PaymentIntent == nil || wh.stripe == nil {
			log.Debug("refund without payment intent")
			return nil
		}
		gp := &stripe.PaymentIntentParams{}
		gp.Context = ctx
		got, err := wh.stripe.api.PaymentIntents.Get(ch.PaymentIntent.ID, gp)
		if err != nil {
			return fmt.Errorf("fetching payment intent[%s]: %w", ch.PaymentIntent.ID, err)
		}
		pi, status, raw = *got, cart.SessionRefunded, "refunded"

	default:
		log.Debug("ignored event")
		return nil
	}

	cartID := pi.Metadata["cart_id"]
	if cartID == "" {
		log.Debug("payment intent without cart")
		return nil
	}

	c, err := wh.repo.GetCart(ctx, cartID, true)
	if err != nil {
		return fmt.Errorf("fetching cart[%s]: %w", cartID, err)
	}

	var sessionID string
	if c.PaymentCollection != nil {
		for _, s := range c.PaymentCollection.Sessions {
			if id, _ := s.Data["id"].(string); id == pi.ID {
				sessionID = s.ID
			}
		}
	}
	if sessionID == "" {
		log.WithField("cart_id", cartID).Warn("no session holds the payment intent")
		return nil
	}

	up := cart.SessionUp{Status: status, Data: map[string]any{"status": raw}}
	if _, err := wh.repo.UpdatePaymentSession(ctx, cartID, sessionID, up); err != nil {
		return fmt.Errorf("updating session[%s]: %w", sessionID, err)
	}

	wh.inval.Invalidate(ctx, invalidate.Carts, cartID)
	if status == cart.SessionCaptured || status == cart.SessionRefunded {
		wh.inval.Invalidate(ctx, invalidate.Orders, "")
	}

	log.WithFields(logrus.Fields{"cart_id": cartID, "session_id": sessionID, "status": status}).Info("session updated from webhook")
	return nil
}
