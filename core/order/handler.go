package order

import (
	"context"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/storefront-checkout/api/web"
	"github.com/irsalhamdi/storefront-checkout/api/weberr"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
)

var errUnconfirmed = failure.New(failure.Validation, "confirmation_required", "the order must be confirmed").
	WithFields(map[string]string{"confirmed": "must be true"})

func HandleComplete(co *Coordinator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var req struct {
			Confirmed bool `json:"confirmed"`
		}
		if err := web.Decode(w, r, &req); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if !req.Confirmed {
			return errUnconfirmed
		}

		res, err := co.Complete(ctx, web.Param(r, "id"))
		if err != nil {
			return err
		}

		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
		}
		return web.Respond(ctx, w, res, status)
	}
}

func HandleShow(co *Coordinator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		o, err := co.Order(ctx, web.Param(r, "id"))
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, o, http.StatusOK)
	}
}
