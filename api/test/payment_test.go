package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/irsalhamdi/storefront-checkout/api/weberr"
	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/invalidate"
	"github.com/irsalhamdi/storefront-checkout/core/order"
	"github.com/irsalhamdi/storefront-checkout/core/payment"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

// readyCart returns a cart that only lacks a payment session.
func readyCart(t *testing.T, env *TestEnv, region string) cart.Cart {
	t.Helper()

	var c cart.Cart
	env.expect(t, http.StatusCreated, http.MethodPost, "/carts", map[string]string{"region_id": region}, &c)
	env.expect(t, http.StatusOK, http.MethodPost, cartPath(c.ID, "line-items"), cart.ItemNew{VariantID: "variant_shampoo", Quantity: 1}, nil)

	email := "ana@example.com"
	up := cart.Update{Email: &email, ShippingAddress: address("Calle 1"), BillingAddress: address("Calle 1")}
	env.expect(t, http.StatusOK, http.MethodPost, cartPath(c.ID), up, nil)

	var m cart.Mutation
	env.expect(t, http.StatusOK, http.MethodPost, cartPath(c.ID, "shipping-methods"), cart.ShippingNew{OptionID: "so_express"}, &m)
	return m.Cart
}

func signed(t *testing.T, typ string, obj any) (*bytes.Reader, http.Header) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        typ,
		"data":        map[string]any{"object": obj},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Stripe-Signature", sp.Header)
	return bytes.NewReader(sp.Payload), h
}

func TestStripeWebhookThenComplete(t *testing.T) {
	env := NewTestEnv(t)
	c := readyCart(t, env, "reg_mx")

	var bd payment.Bound
	env.expect(t, http.StatusCreated, http.MethodPost, cartPath(c.ID, "payment-sessions"), nil, &bd)
	if bd.Session.ProviderID != payment.StripeID {
		t.Fatalf("expected the default provider, got %s", bd.Session.ProviderID)
	}

	piID, _ := bd.Session.Data["id"].(string)
	pi, ok := env.Stripe.Intent(piID)
	if !ok || pi.Metadata["cart_id"] != c.ID {
		t.Fatalf("expected the intent to carry the cart, got %+v", pi)
	}
	pi.Status = "succeeded"

	body, h := signed(t, "payment_intent.succeeded", pi)
	if status := env.send(t, http.MethodPost, "/webhooks/stripe", body, h, nil); status != http.StatusNoContent {
		t.Fatalf("expected the event to be accepted, got %d", status)
	}

	var e weberr.ErrorResponse
	env.expect(t, http.StatusGone, http.MethodPost, cartPath(c.ID, "payment-sessions/ensure"), nil, &e)
	if e.Reason != string(payment.PaymentFinalized) {
		t.Fatalf("expected a finalized payment, got %+v", e)
	}

	var cur payment.Bound
	env.expect(t, http.StatusOK, http.MethodGet, cartPath(c.ID, "payment-sessions/current"), nil, &cur)
	if cur.Session.Status != cart.SessionCaptured || cur.Validation.ShouldRecreate {
		t.Fatalf("expected a captured session that is never recreated, got %+v", cur)
	}
	if env.Stripe.Created() != 1 {
		t.Fatalf("expected a single intent, got %d", env.Stripe.Created())
	}

	var res order.Result
	env.expect(t, http.StatusCreated, http.MethodPost, cartPath(c.ID, "complete"), map[string]bool{"confirmed": true}, &res)
	if res.Order.Total != c.Total || env.Stripe.Confirms() != 0 {
		t.Fatalf("expected the paid cart to complete without a new confirmation, got %+v after %d confirms", res.Order, env.Stripe.Confirms())
	}

	env.settle(t)
	if !env.Invalidated.Has(invalidate.Carts, c.ID) {
		t.Fatal("expected carts to be invalidated")
	}
	if !env.Invalidated.Has(invalidate.Orders, res.Order.ID) {
		t.Fatal("expected orders to be invalidated")
	}
}

func TestStripeWebhookRejectsUnsigned(t *testing.T) {
	env := NewTestEnv(t)

	body, h := signed(t, "payment_intent.succeeded", map[string]any{"id": "pi_1"})
	h.Del("Stripe-Signature")
	if status := env.send(t, http.MethodPost, "/webhooks/stripe", body, h, nil); status != http.StatusBadRequest {
		t.Fatalf("expected an unsigned event to be refused, got %d", status)
	}

	body, h = signed(t, "payment_intent.succeeded", map[string]any{"id": "pi_1"})
	h.Set("Stripe-Signature", "t=1,v1=deadbeef")
	if status := env.send(t, http.MethodPost, "/webhooks/stripe", body, h, nil); status != http.StatusBadRequest {
		t.Fatalf("expected a forged event to be refused, got %d", status)
	}
}

func TestPaypalCheckout(t *testing.T) {
	env := NewTestEnv(t)
	c := readyCart(t, env, "reg_us")

	var bd payment.Bound
	env.expect(t, http.StatusCreated, http.MethodPost, cartPath(c.ID, "payment-sessions"), map[string]string{"provider_id": "paypal"}, &bd)
	if bd.Session.Data["approve_url"] == nil {
		t.Fatalf("expected an approval link, got %v", bd.Session.Data)
	}

	id, _ := bd.Session.Data["id"].(string)
	if got := env.Paypal.Amount(id); got != "199.00" {
		t.Fatalf("expected 199.00 to be requested, got %q", got)
	}

	var res order.Result
	env.expect(t, http.StatusCreated, http.MethodPost, cartPath(c.ID, "complete"), map[string]bool{"confirmed": true}, &res)
	if res.Order.Total != c.Total || env.Paypal.Captures() != 1 {
		t.Fatalf("expected one capture for %d, got %+v after %d captures", c.Total, res.Order, env.Paypal.Captures())
	}
}

func TestPaypalCaptureRefused(t *testing.T) {
	env := NewTestEnv(t)
	env.Paypal.FailCapture = true
	c := readyCart(t, env, "reg_us")

	env.expect(t, http.StatusCreated, http.MethodPost, cartPath(c.ID, "payment-sessions"), map[string]string{"provider_id": "paypal"}, nil)

	var e weberr.ErrorResponse
	status := env.do(t, http.MethodPost, cartPath(c.ID, "complete"), map[string]bool{"confirmed": true}, &e)
	if status < http.StatusBadRequest {
		t.Fatalf("expected completion to fail, got %d", status)
	}

	var shown struct {
		Cart cart.Cart `json:"cart"`
	}
	env.expect(t, http.StatusOK, http.MethodGet, cartPath(c.ID), nil, &shown)
	if shown.Cart.Completed() {
		t.Fatal("a refused capture must leave the cart open")
	}
}
