package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/irsalhamdi/storefront-checkout/api/web"
	"github.com/irsalhamdi/storefront-checkout/api/weberr"
	"github.com/stripe/stripe-go/v74/webhook"
)

type sessionReq struct {
	ProviderID string `json:"provider_id"`
}

func decodeSession(w http.ResponseWriter, r *http.Request) (sessionReq, error) {
	var req sessionReq
	if err := web.DecodeOptional(w, r, &req); err != nil {
		return req, weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
	}
	return req, nil
}

func HandleBind(g *Guard) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		req, err := decodeSession(w, r)
		if err != nil {
			return err
		}

		bd, err := g.Bind(ctx, web.Param(r, "id"), req.ProviderID)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, bd, http.StatusCreated)
	}
}

func HandleEnsure(g *Guard) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		req, err := decodeSession(w, r)
		if err != nil {
			return err
		}

		bd, err := g.Ensure(ctx, web.Param(r, "id"), req.ProviderID)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, bd, http.StatusOK)
	}
}

func HandleValidate(g *Guard) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		bd, err := g.ValidateCart(ctx, web.Param(r, "id"))
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, bd, http.StatusOK)
	}
}

func HandleStripeWebhook(wh *Webhook, secret string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.BadRequest(errors.New("received stripe event is not signed"))
		}

		event, err := webhook.ConstructEvent(b, sig, secret)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot construct stripe event: %w", err))
		}

		if err := wh.Apply(ctx, event); err != nil {
			return fmt.Errorf("applying stripe event[%s]: %w", event.ID, err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
