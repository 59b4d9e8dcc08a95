package checkout

import (
	"context"
	"net/http"
	"strconv"

	"github.com/irsalhamdi/storefront-checkout/api/web"
	"github.com/irsalhamdi/storefront-checkout/core/payment"
)

type Validator interface {
	ValidateCart(ctx context.Context, cartID string) (payment.Bound, error)
}

type stepView struct {
	Step       Step               `json:"step,omitempty"`
	Furthest   Step               `json:"furthest"`
	Validation payment.Validation `json:"payment"`
}

// HandleStep answers whether the cart may enter ?step=. Without a step it only
// reports the furthest enterable one.
func HandleStep(v Validator) web.Handler {
	var m Machine

	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		q := r.URL.Query()

		bd, err := v.ValidateCart(ctx, web.Param(r, "id"))
		if err != nil {
			return err
		}

		confirmed, _ := strconv.ParseBool(q.Get("confirmed"))
		f := Facts{PaymentValid: bd.Validation.Valid, Confirmed: confirmed}
		view := stepView{Furthest: m.Furthest(bd.Cart, f), Validation: bd.Validation}

		if s := q.Get("step"); s != "" {
			step, err := ParseStep(s)
			if err != nil {
				return err
			}
			if err := m.Check(bd.Cart, step, f); err != nil {
				return err
			}
			view.Step = step
		}

		return web.Respond(ctx, w, view, http.StatusOK)
	}
}
