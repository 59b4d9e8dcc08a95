package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/irsalhamdi/storefront-checkout/api/web"
	"github.com/irsalhamdi/storefront-checkout/api/weberr"
	"github.com/irsalhamdi/storefront-checkout/rate"
	"github.com/sirupsen/logrus"
)

// RateLimit throttles requests sharing a key, the cart id by default.
func RateLimit(l *rate.Limiter, key func(r *http.Request) string) web.Middleware {
	if key == nil {
		key = func(r *http.Request) string { return web.Param(r, "id") }
	}

	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			k := key(r)
			if k != "" && !l.Check(k) {
				return weberr.TooManyRequests(errors.New("rate limit exceeded"),
					weberr.WithLogFields(logrus.Fields{"limit_key": k}))
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
