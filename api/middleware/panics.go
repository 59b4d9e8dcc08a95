package middleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/irsalhamdi/storefront-checkout/api/web"
)

// Panics turns a panic into an error so Errors can answer with a 500.
func Panics() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("PANIC [%v] TRACE[%s]", rec, string(debug.Stack()))
				}
			}()

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
