package middleware

import (
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/storefront-checkout/api/web"
)

// Session loads the shopper's session before the handler and saves it after.
// It must wrap every middleware that writes the response.
func Session(sm *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			var err error

			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				err = handler(r.Context(), w, r)
			})
			sm.LoadAndSave(next).ServeHTTP(w, r.WithContext(ctx))

			return err
		}
		return h
	}
	return m
}
