// Package paymenttest fakes the Stripe and PayPal APIs the payment providers
// talk to.
package paymenttest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/storefront-checkout/api/web"
	mock "github.com/stripe/stripe-mock/param"
)

// DeclinedCard is the payment method the Stripe mock refuses.
const DeclinedCard = "pm_card_chargeDeclined"

type Intent struct {
	ID           string            `json:"id"`
	Object       string            `json:"object"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	Metadata     map[string]string `json:"metadata"`
}

type Stripe struct {
	// ConfirmStatus is the status a confirmed intent moves to, succeeded
	// when empty.
	ConfirmStatus string

	mu       sync.Mutex
	intents  map[string]*Intent
	keys     map[string]string
	confirms map[string]bool
	seq      int
}

func NewStripe() *Stripe {
	return &Stripe{
		intents:  make(map[string]*Intent),
		keys:     make(map[string]string),
		confirms: make(map[string]bool),
	}
}

func (m *Stripe) Intent(id string) (Intent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pi, ok := m.intents[id]
	if !ok {
		return Intent{}, false
	}
	return *pi, true
}

// Created is the number of distinct intents, idempotent replays excluded.
func (m *Stripe) Created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.intents)
}

// Confirms is the number of distinct confirmations the mock applied.
func (m *Stripe) Confirms() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.confirms)
}

func (m *Stripe) SetStatus(id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pi, ok := m.intents[id]; ok {
		pi.Status = status
	}
}

func (m *Stripe) Handler() http.Handler {
	create := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := mock.ParseParams(r)
		if err != nil {
			stripeErr(w, http.StatusBadRequest, "invalid_request_error", err.Error())
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		key := r.Header.Get("Idempotency-Key")
		if id, ok := m.keys[key]; ok && key != "" {
			web.Respond(context.Background(), w, m.intents[id], http.StatusOK)
			return
		}

		amount, err := strconv.ParseInt(fmt.Sprint(params["amount"]), 10, 64)
		if err != nil || amount <= 0 {
			stripeErr(w, http.StatusBadRequest, "invalid_request_error", "invalid amount")
			return
		}

		md := make(map[string]string)
		if raw, ok := params["metadata"].(map[string]interface{}); ok {
			for k, v := range raw {
				md[k] = fmt.Sprint(v)
			}
		}

		m.seq++
		pi := &Intent{
			ID:       fmt.Sprintf("pi_%d", m.seq),
			Object:   "payment_intent",
			Amount:   amount,
			Currency: fmt.Sprint(params["currency"]),
			Status:   "requires_payment_method",
			Metadata: md,
		}
		pi.ClientSecret = pi.ID + "_secret"
		m.intents[pi.ID] = pi
		m.keys[key] = pi.ID

		web.Respond(context.Background(), w, pi, http.StatusOK)
	})

	get := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		pi, ok := m.intents[mux.Vars(r)["id"]]
		if !ok {
			stripeErr(w, http.StatusNotFound, "invalid_request_error", "no such payment_intent")
			return
		}
		web.Respond(context.Background(), w, pi, http.StatusOK)
	})

	confirm := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := mock.ParseParams(r)
		if err != nil {
			stripeErr(w, http.StatusBadRequest, "invalid_request_error", err.Error())
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		pi, ok := m.intents[mux.Vars(r)["id"]]
		if !ok {
			stripeErr(w, http.StatusNotFound, "invalid_request_error", "no such payment_intent")
			return
		}

		if params["payment_method"] == DeclinedCard {
			stripeErr(w, http.StatusPaymentRequired, "card_error", "Your card was declined.")
			return
		}

		key := r.Header.Get("Idempotency-Key")
		if !m.confirms[key] {
			m.confirms[key] = true
			pi.Status = m.ConfirmStatus
			if pi.Status == "" {
				pi.Status = "succeeded"
			}
		}
		web.Respond(context.Background(), w, pi, http.StatusOK)
	})

	r := mux.NewRouter()
	r.Handle("/v1/payment_intents", create).Methods(http.MethodPost)
	r.Handle("/v1/payment_intents/{id}", get).Methods(http.MethodGet)
	r.Handle("/v1/payment_intents/{id}/confirm", confirm).Methods(http.MethodPost)
	return r
}

func stripeErr(w http.ResponseWriter, status int, typ, msg string) {
	body := map[string]any{"error": map[string]any{"type": typ, "message": msg}}
	web.Respond(context.Background(), w, body, status)
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []link `json:"links,omitempty"`
	Amount string `json:"-"`
}

type Paypal struct {
	// FailCapture answers captures with an error, as when the order was
	// already captured.
	FailCapture bool

	mu       sync.Mutex
	orders   map[string]*order
	created  map[string]string
	captured map[string]string
	captures int
	seq      int
}

// requestIDHeader makes PayPal replay the first answer to a repeated request.
const requestIDHeader = "PayPal-Request-Id"

func NewPaypal() *Paypal {
	return &Paypal{
		orders:   make(map[string]*order),
		created:  make(map[string]string),
		captured: make(map[string]string),
	}
}

// Orders is the number of distinct orders, replayed creations excluded.
func (m *Paypal) Orders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *Paypal) Captures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}

func (m *Paypal) SetStatus(id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.Status = status
	}
}

// Amount is the value the order was created with.
func (m *Paypal) Amount(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		return o.Amount
	}
	return ""
}

func (m *Paypal) Handler() http.Handler {
	token := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := map[string]any{"access_token": "test-token", "token_type": "Bearer", "expires_in": 3600}
		web.Respond(context.Background(), w, tok, http.StatusOK)
	})

	create := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Intent string `json:"intent"`
			Units  []struct {
				ReferenceID string `json:"reference_id"`
				Amount      struct {
					Currency string `json:"currency_code"`
					Value    string `json:"value"`
				} `json:"amount"`
			} `json:"purchase_units"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || len(in.Units) != 1 {
			web.Respond(context.Background(), w, map[string]string{"name": "INVALID_REQUEST"}, http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		rid := r.Header.Get(requestIDHeader)
		if id, ok := m.created[rid]; ok && rid != "" {
			web.Respond(context.Background(), w, m.orders[id], http.StatusOK)
			return
		}

		m.seq++
		o := &order{
			ID:     fmt.Sprintf("PAYPAL-%d", m.seq),
			Status: "CREATED",
			Amount: in.Units[0].Amount.Value,
		}
		o.Links = []link{{Href: "https://paypal.test/checkoutnow?token=" + o.ID, Rel: "approve"}}
		m.orders[o.ID] = o
		if rid != "" {
			m.created[rid] = o.ID
		}

		web.Respond(context.Background(), w, o, http.StatusCreated)
	})

	get := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		o, ok := m.orders[mux.Vars(r)["id"]]
		if !ok {
			web.Respond(context.Background(), w, map[string]string{"name": "RESOURCE_NOT_FOUND"}, http.StatusNotFound)
			return
		}
		web.Respond(context.Background(), w, o, http.StatusOK)
	})

	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		o, ok := m.orders[mux.Vars(r)["id"]]
		if !ok {
			web.Respond(context.Background(), w, map[string]string{"name": "RESOURCE_NOT_FOUND"}, http.StatusNotFound)
			return
		}
		rid := r.Header.Get(requestIDHeader)
		if id, ok := m.captured[rid]; ok && rid != "" && id == o.ID {
			web.Respond(context.Background(), w, o, http.StatusOK)
			return
		}
		if m.FailCapture || o.Status == "COMPLETED" {
			web.Respond(context.Background(), w, map[string]string{"name": "UNPROCESSABLE_ENTITY"}, http.StatusUnprocessableEntity)
			return
		}

		m.captures++
		o.Status = "COMPLETED"
		if rid != "" {
			m.captured[rid] = o.ID
		}
		web.Respond(context.Background(), w, o, http.StatusCreated)
	})

	r := mux.NewRouter()
	r.Handle("/v1/oauth2/token", token).Methods(http.MethodPost)
	r.Handle("/v2/checkout/orders", create).Methods(http.MethodPost)
	r.Handle("/v2/checkout/orders/{id}", get).Methods(http.MethodGet)
	r.Handle("/v2/checkout/orders/{id}/capture", capture).Methods(http.MethodPost)
	return r
}
