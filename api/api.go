package api

import (
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/irsalhamdi/storefront-checkout/api/middleware"
	"github.com/irsalhamdi/storefront-checkout/api/web"
	"github.com/irsalhamdi/storefront-checkout/core/bundle"
	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/checkout"
	"github.com/irsalhamdi/storefront-checkout/core/invalidate"
	"github.com/irsalhamdi/storefront-checkout/core/order"
	"github.com/irsalhamdi/storefront-checkout/core/payment"
	"github.com/irsalhamdi/storefront-checkout/rate"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

type APIConfig struct {
	CorsOrigins         []string
	Log                 logrus.FieldLogger
	Session             *scs.SessionManager
	Carts               *cart.Service
	Guard               *payment.Guard
	Coordinator         *order.Coordinator
	Fanout              *invalidate.Fanout
	Webhook             *payment.Webhook
	StripeWebhookSecret string
	Limiter             *rate.Limiter
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, middleware.Session(cfg.Session))
	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	var limit web.Middleware
	if cfg.Limiter != nil {
		limit = middleware.RateLimit(cfg.Limiter, nil)
	}

	group := func(items []cart.LineItem) (any, error) { return bundle.Build(items) }

	a.Handle(http.MethodGet, "/cart", cart.HandleShowCurrent(cfg.Carts, cfg.Session, group))
	a.Handle(http.MethodPost, "/cart/line-items", cart.HandleAddCurrent(cfg.Carts, cfg.Session))

	a.Handle(http.MethodPost, "/carts", cart.HandleCreate(cfg.Carts))
	a.Handle(http.MethodGet, "/carts/{id}", cart.HandleShow(cfg.Carts, group))
	a.Handle(http.MethodPost, "/carts/{id}", cart.HandleUpdate(cfg.Carts), limit)
	a.Handle(http.MethodPost, "/carts/{id}/line-items", cart.HandleAddItem(cfg.Carts), limit)
	a.Handle(http.MethodPost, "/carts/{id}/line-items/{item_id}", cart.HandleUpdateItem(cfg.Carts), limit)
	a.Handle(http.MethodDelete, "/carts/{id}/line-items/{item_id}", cart.HandleRemoveItem(cfg.Carts), limit)
	a.Handle(http.MethodDelete, "/carts/{id}/bundles/{bundle_id}", cart.HandleRemoveBundle(cfg.Carts), limit)
	a.Handle(http.MethodPost, "/carts/{id}/shipping-methods", cart.HandleSelectShipping(cfg.Carts), limit)

	a.Handle(http.MethodPost, "/carts/{id}/payment-sessions", payment.HandleBind(cfg.Guard), limit)
	a.Handle(http.MethodPost, "/carts/{id}/payment-sessions/ensure", payment.HandleEnsure(cfg.Guard), limit)
	a.Handle(http.MethodGet, "/carts/{id}/payment-sessions/current", payment.HandleValidate(cfg.Guard))

	a.Handle(http.MethodGet, "/carts/{id}/checkout", checkout.HandleStep(cfg.Guard))
	a.Handle(http.MethodPost, "/carts/{id}/complete", order.HandleComplete(cfg.Coordinator), limit)
	a.Handle(http.MethodGet, "/orders/{id}", order.HandleShow(cfg.Coordinator))

	a.Handle(http.MethodPost, "/cache/invalidate", invalidate.HandleInvalidate(cfg.Fanout))

	if cfg.Webhook != nil {
		a.Handle(http.MethodPost, "/webhooks/stripe", payment.HandleStripeWebhook(cfg.Webhook, cfg.StripeWebhookSecret))
	}

	if len(cfg.CorsOrigins) == 0 {
		return a.Router
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	})
	return c.Handler(a.Router)
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
