// Package commercetest serves a commerce.Memory over the backend's HTTP API.
package commercetest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/storefront-checkout/api/web"
	"github.com/irsalhamdi/storefront-checkout/commerce"
	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
)

type Server struct {
	Backend *commerce.Memory

	mu       sync.Mutex
	noStore  int
	requests int
	// Fail, when set, answers every request with this status.
	Fail int
}

func New(m *commerce.Memory) *Server {
	return &Server{Backend: m}
}

// NoStoreReads is the number of cart reads that asked to bypass caches.
func (s *Server) NoStoreReads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.noStore
}

func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Server) SetFail(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fail = status
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.count)

	r.HandleFunc("/carts", s.cart(func(r *http.Request) (cart.Cart, error) {
		var in struct {
			RegionID string `json:"region_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return cart.Cart{}, failure.New(failure.Validation, "invalid_body", err.Error())
		}
		return s.Backend.CreateCart(r.Context(), in.RegionID)
	})).Methods(http.MethodPost)

	r.HandleFunc("/carts/{id}", s.cart(func(r *http.Request) (cart.Cart, error) {
		return s.Backend.GetCart(r.Context(), mux.Vars(r)["id"], r.Header.Get("Cache-Control") == "no-store")
	})).Methods(http.MethodGet)

	r.HandleFunc("/carts/{id}", s.cart(func(r *http.Request) (cart.Cart, error) {
		var up cart.Update
		if err := decode(r, &up); err != nil {
			return cart.Cart{}, err
		}
		return s.Backend.UpdateCart(r.Context(), mux.Vars(r)["id"], up)
	})).Methods(http.MethodPost)

	r.HandleFunc("/carts/{id}/line-items", s.cart(func(r *http.Request) (cart.Cart, error) {
		var it cart.ItemNew
		if err := decode(r, &it); err != nil {
			return cart.Cart{}, err
		}
		return s.Backend.AddLineItem(r.Context(), mux.Vars(r)["id"], it)
	})).Methods(http.MethodPost)

	r.HandleFunc("/carts/{id}/line-items/{item}", s.cart(func(r *http.Request) (cart.Cart, error) {
		var up cart.ItemUp
		if err := decode(r, &up); err != nil {
			return cart.Cart{}, err
		}
		v := mux.Vars(r)
		return s.Backend.UpdateLineItem(r.Context(), v["id"], v["item"], up)
	})).Methods(http.MethodPost)

	r.HandleFunc("/carts/{id}/line-items/{item}", s.cart(func(r *http.Request) (cart.Cart, error) {
		v := mux.Vars(r)
		return s.Backend.DeleteLineItem(r.Context(), v["id"], v["item"])
	})).Methods(http.MethodDelete)

	r.HandleFunc("/carts/{id}/shipping-methods", s.cart(func(r *http.Request) (cart.Cart, error) {
		var sm cart.ShippingNew
		if err := decode(r, &sm); err != nil {
			return cart.Cart{}, err
		}
		return s.Backend.AddShippingMethod(r.Context(), mux.Vars(r)["id"], sm)
	})).Methods(http.MethodPost)

	r.HandleFunc("/carts/{id}/payment-sessions", s.cart(func(r *http.Request) (cart.Cart, error) {
		var ps cart.SessionNew
		if err := decode(r, &ps); err != nil {
			return cart.Cart{}, err
		}
		return s.Backend.CreatePaymentSession(r.Context(), mux.Vars(r)["id"], ps)
	})).Methods(http.MethodPost)

	r.HandleFunc("/carts/{id}/payment-sessions/{session}", s.cart(func(r *http.Request) (cart.Cart, error) {
		var up cart.SessionUp
		if err := decode(r, &up); err != nil {
			return cart.Cart{}, err
		}
		v := mux.Vars(r)
		return s.Backend.UpdatePaymentSession(r.Context(), v["id"], v["session"], up)
	})).Methods(http.MethodPost)

	r.HandleFunc("/carts/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
		comp, err := s.Backend.Complete(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			respondErr(w, err)
			return
		}
		web.Respond(r.Context(), w, comp, http.StatusOK)
	}).Methods(http.MethodPost)

	return r
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++
		if r.Method == http.MethodGet && r.Header.Get("Cache-Control") == "no-store" {
			s.noStore++
		}
		fail := s.Fail
		s.mu.Unlock()

		if fail != 0 {
			web.Respond(r.Context(), w, map[string]string{"type": "unavailable", "message": http.StatusText(fail)}, fail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cart(fn func(r *http.Request) (cart.Cart, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := fn(r)
		if err != nil {
			respondErr(w, err)
			return
		}
		web.Respond(r.Context(), w, map[string]cart.Cart{"cart": c}, http.StatusOK)
	}
}

func decode(r *http.Request, val any) error {
	if err := json.NewDecoder(r.Body).Decode(val); err != nil {
		return failure.New(failure.Validation, "invalid_body", err.Error())
	}
	return nil
}

func respondErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]any{"type": "unknown_error", "message": err.Error()}

	if fe, ok := failure.As(err); ok {
		body["type"], body["message"] = fe.Reason, fe.Message
		if len(fe.Fields) > 0 {
			body["fields"] = fe.Fields
		}
		switch fe.Class {
		case failure.NotFound:
			status = http.StatusNotFound
		case failure.Terminal:
			status = http.StatusConflict
		case failure.Validation:
			status = http.StatusBadRequest
		}
	}
	web.Respond(context.Background(), w, body, status)
}
