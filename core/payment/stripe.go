package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

const StripeID = "stripe"

type Stripe struct {
	api *stripecl.API
	// paymentMethod confirms intents server side when set, e.g. pm_card_visa
	// against test keys.
	paymentMethod string
}

func NewStripe(api *stripecl.API, paymentMethod string) *Stripe {
	return &Stripe{api: api, paymentMethod: paymentMethod}
}

// NewStripeAPI builds a client; url overrides the API host for mocks.
func NewStripeAPI(key, url string) *stripecl.API {
	api := &stripecl.API{}
	if url == "" {
		api.Init(key, nil)
		return api
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(url),
		MaxNetworkRetries: stripe.Int64(0),
	})
	api.Init(key, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return api
}

func (s *Stripe) ID() string { return StripeID }

func (s *Stripe) Initiate(ctx context.Context, c cart.Cart, key string) (map[string]any, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(c.Total),
		Currency: stripe.String(strings.ToLower(c.CurrencyCode)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(key)
	params.AddMetadata("cart_id", c.ID)
	params.AddMetadata("idempotency_key", key)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating stripe payment intent: %w", err)
	}

	return map[string]any{
		"id":            pi.ID,
		"status":        string(pi.Status),
		"client_secret": pi.ClientSecret,
		"amount":        pi.Amount,
		"currency":      string(pi.Currency),
	}, nil
}

func (s *Stripe) Confirm(ctx context.Context, ps cart.PaymentSession, key string) (Confirmation, error) {
	id, _ := ps.Data["id"].(string)
	if id == "" {
		return Confirmation{}, fmt.Errorf("session[%s] carries no payment intent", ps.ID)
	}

	gp := &stripe.PaymentIntentParams{}
	gp.Context = ctx
	pi, err := s.api.PaymentIntents.Get(id, gp)
	if err != nil {
		return Confirmation{}, fmt.Errorf("fetching stripe payment intent[%s]: %w", id, err)
	}

	confirmable := pi.Status == stripe.PaymentIntentStatusRequiresConfirmation ||
		(pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod && s.paymentMethod != "")

	if confirmable {
		cp := &stripe.PaymentIntentConfirmParams{}
		cp.Context = ctx
		cp.SetIdempotencyKey(key + "-confirm")
		if s.paymentMethod != "" {
			cp.PaymentMethod = stripe.String(s.paymentMethod)
		}

		pi, err = s.api.PaymentIntents.Confirm(id, cp)
		if err != nil {
			var se *stripe.Error
			if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
				return Confirmation{
					Status: cart.SessionError,
					Data:   map[string]any{"status": "requires_payment_method", "last_error": se.Msg},
				}, nil
			}
			return Confirmation{}, fmt.Errorf("confirming stripe payment intent[%s]: %w", id, err)
		}
	}

	return Confirmation{
		Status: stripeStatus(pi.Status),
		Data:   map[string]any{"id": pi.ID, "status": string(pi.Status)},
	}, nil
}

func stripeStatus(s stripe.PaymentIntentStatus) cart.SessionStatus {
	switch s {
	case stripe.PaymentIntentStatusRequiresAction:
		return cart.SessionRequiresAction
	case stripe.PaymentIntentStatusRequiresCapture:
		return cart.SessionAuthorized
	case stripe.PaymentIntentStatusSucceeded:
		return cart.SessionCaptured
	case stripe.PaymentIntentStatusCanceled:
		return cart.SessionError
	}
	return cart.SessionPending
}
