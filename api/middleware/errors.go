package middleware

import (
	"context"
	"net/http"

	"github.com/irsalhamdi/storefront-checkout/api/web"
	"github.com/irsalhamdi/storefront-checkout/api/weberr"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
	"github.com/sirupsen/logrus"
)

func Errors(log logrus.FieldLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			log := log.WithFields(weberr.LogFields(err)).WithFields(logrus.Fields{
				"req_id":  ContextRequestID(ctx),
				"message": err,
			})

			if body, code, ok := weberr.Response(err); ok {
				log.Warn("ERROR")
				return web.Respond(ctx, w, body, code)
			}

			if body, code, ok := weberr.Failure(err); ok {
				fe, _ := failure.As(err)
				log = log.WithFields(logrus.Fields{"reason": fe.Reason, "class": fe.Class})
				if code >= http.StatusInternalServerError {
					log.Error("ERROR")
				} else {
					log.Warn("ERROR")
				}
				return web.Respond(ctx, w, body, code)
			}

			log.Error("ERROR")

			er := weberr.ErrorResponse{
				Error:  http.StatusText(http.StatusInternalServerError),
				Reason: "internal",
			}
			return web.Respond(ctx, w, er, http.StatusInternalServerError)
		}
		return h
	}
	return m
}
