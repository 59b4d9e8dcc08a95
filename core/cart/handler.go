package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/storefront-checkout/api/web"
	"github.com/irsalhamdi/storefront-checkout/api/weberr"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
	"github.com/irsalhamdi/storefront-checkout/validate"
)

// SessionKey is where the shopper's current cart id lives in the session.
const SessionKey = "cart_id"

// Grouper derives the bundle view of a cart's items.
type Grouper func(items []LineItem) (any, error)

type view struct {
	Cart     Cart     `json:"cart"`
	Grouping any      `json:"grouping"`
	Snapshot Snapshot `json:"snapshot"`
}

func show(ctx context.Context, w http.ResponseWriter, svc *Service, group Grouper, id string) error {
	c, err := svc.Get(ctx, id)
	if err != nil {
		return err
	}

	g, err := group(c.Items)
	if err != nil {
		return fmt.Errorf("grouping items of cart[%s]: %w", id, err)
	}

	return web.Respond(ctx, w, view{Cart: c, Grouping: g, Snapshot: TakeSnapshot(c)}, http.StatusOK)
}

func decode(w http.ResponseWriter, r *http.Request, val any) error {
	if err := web.Decode(w, r, val); err != nil {
		return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
	}
	return validate.Check(val)
}

func HandleShow(svc *Service, group Grouper) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return show(ctx, w, svc, group, web.Param(r, "id"))
	}
}

func HandleCreate(svc *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var req struct {
			RegionID string `json:"region_id" validate:"required"`
		}
		if err := decode(w, r, &req); err != nil {
			return err
		}

		c, err := svc.Create(ctx, req.RegionID)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, c, http.StatusCreated)
	}
}

func HandleUpdate(svc *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var up Update
		if err := decode(w, r, &up); err != nil {
			return err
		}

		m, err := svc.Update(ctx, web.Param(r, "id"), up)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, m, http.StatusOK)
	}
}

func HandleAddItem(svc *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var it ItemNew
		if err := decode(w, r, &it); err != nil {
			return err
		}

		m, err := svc.AddItem(ctx, web.Param(r, "id"), it)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, m, http.StatusOK)
	}
}

func HandleUpdateItem(svc *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var up ItemUp
		if err := decode(w, r, &up); err != nil {
			return err
		}

		m, err := svc.UpdateItem(ctx, web.Param(r, "id"), web.Param(r, "item_id"), up)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, m, http.StatusOK)
	}
}

func HandleRemoveItem(svc *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		m, err := svc.RemoveItem(ctx, web.Param(r, "id"), web.Param(r, "item_id"))
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, m, http.StatusOK)
	}
}

func HandleRemoveBundle(svc *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		m, err := svc.RemoveBundle(ctx, web.Param(r, "id"), web.Param(r, "bundle_id"))
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, m, http.StatusOK)
	}
}

func HandleSelectShipping(svc *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var sm ShippingNew
		if err := decode(w, r, &sm); err != nil {
			return err
		}

		m, err := svc.SelectShipping(ctx, web.Param(r, "id"), sm)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, m, http.StatusOK)
	}
}

// HandleShowCurrent shows the cart remembered in the shopper's session.
func HandleShowCurrent(svc *Service, sm *scs.SessionManager, group Grouper) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := sm.GetString(ctx, SessionKey)
		if id == "" {
			return failure.ErrCartNotFound
		}

		err := show(ctx, w, svc, group, id)
		if errors.Is(err, failure.ErrCartNotFound) {
			sm.Remove(ctx, SessionKey)
		}
		return err
	}
}

// HandleAddCurrent adds an item to the session's cart, opening one in the
// requested region on first use.
func HandleAddCurrent(svc *Service, sm *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var req struct {
			ItemNew
			RegionID string `json:"region_id"`
		}
		if err := decode(w, r, &req); err != nil {
			return err
		}

		id := sm.GetString(ctx, SessionKey)
		if id == "" {
			if req.RegionID == "" {
				return failure.New(failure.Validation, "invalid_input", "region_id is required for a new cart").
					WithFields(map[string]string{"region_id": "region_id is a required field"})
			}

			c, err := svc.Create(ctx, req.RegionID)
			if err != nil {
				return err
			}
			if err := sm.RenewToken(ctx); err != nil {
				return fmt.Errorf("renewing session token: %w", err)
			}
			id = c.ID
			sm.Put(ctx, SessionKey, id)
		}

		m, err := svc.AddItem(ctx, id, req.ItemNew)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, m, http.StatusOK)
	}
}
