package invalidate

import (
	"context"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/storefront-checkout/api/web"
	"github.com/irsalhamdi/storefront-checkout/api/weberr"
	"github.com/sirupsen/logrus"
)

// HandleInvalidate lets collaborators outside the core signal a change, e.g.
// the auth service after login, signup or a profile update.
func HandleInvalidate(f *Fanout) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var req struct {
			Domain string `json:"domain"`
			ID     string `json:"id"`
		}
		if err := web.Decode(w, r, &req); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		d, err := ParseDomain(req.Domain)
		if err != nil {
			return weberr.BadRequest(err,
				weberr.WithInput(map[string]string{"domain": err.Error()}),
				weberr.WithLogFields(logrus.Fields{"domain": req.Domain}),
			)
		}

		f.Invalidate(ctx, d, req.ID)
		return web.Respond(ctx, w, req, http.StatusAccepted)
	}
}
