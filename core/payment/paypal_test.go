package payment

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/payment/paymenttest"
	"github.com/plutov/paypal/v4"
)

func newPaypal(t *testing.T) (*Paypal, *paymenttest.Paypal) {
	t.Helper()

	mock := paymenttest.NewPaypal()
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)

	client, err := paypal.NewClient("client", "secret", srv.URL)
	if err != nil {
		t.Fatalf("building paypal client: %v", err)
	}
	if _, err := client.GetAccessToken(context.Background()); err != nil {
		t.Fatalf("getting paypal token: %v", err)
	}

	return NewPaypal(client, "https://shop.test/return", "https://shop.test/cancel"), mock
}

func TestPaypalFlow(t *testing.T) {
	p, mock := newPaypal(t)
	ctx := context.Background()

	data, err := p.Initiate(ctx, cart.Cart{ID: "cart_1", Total: 50050, CurrencyCode: "mxn"}, "key")
	if err != nil {
		t.Fatalf("initiating: %v", err)
	}

	id, _ := data["id"].(string)
	if got := mock.Amount(id); got != "500.50" {
		t.Fatalf("expected amount 500.50, got %q", got)
	}
	if data["approve_url"] == nil {
		t.Fatalf("expected an approval link, got %v", data)
	}

	ps := cart.PaymentSession{ID: "ps_1", Data: data}
	conf, err := p.Confirm(ctx, ps, "key")
	if err != nil {
		t.Fatalf("capturing: %v", err)
	}
	if conf.Status != cart.SessionCaptured {
		t.Fatalf("expected captured, got %s", conf.Status)
	}

	conf, err = p.Confirm(ctx, ps, "key")
	if err != nil {
		t.Fatalf("capturing again: %v", err)
	}
	if conf.Status != cart.SessionCaptured || mock.Captures() != 1 {
		t.Fatalf("expected a second capture to read the order back, got %s after %d captures", conf.Status, mock.Captures())
	}
}

func TestPaypalRequestsAreIdempotent(t *testing.T) {
	p, mock := newPaypal(t)
	ctx := context.Background()
	c := cart.Cart{ID: "cart_1", Total: 2000, CurrencyCode: "usd"}

	first, err := p.Initiate(ctx, c, "key-1")
	if err != nil {
		t.Fatalf("initiating: %v", err)
	}
	again, err := p.Initiate(ctx, c, "key-1")
	if err != nil {
		t.Fatalf("initiating again: %v", err)
	}
	if first["id"] != again["id"] || mock.Orders() != 1 {
		t.Fatalf("expected a retried creation to return order %v, got %v with %d orders", first["id"], again["id"], mock.Orders())
	}

	if _, err := p.Initiate(ctx, c, "key-2"); err != nil {
		t.Fatalf("initiating the next attempt: %v", err)
	}
	if mock.Orders() != 2 {
		t.Fatalf("expected a new attempt to open a new order, got %d orders", mock.Orders())
	}

	ps := cart.PaymentSession{ID: "ps_1", Data: first}
	for i := 0; i < 2; i++ {
		conf, err := p.Confirm(ctx, ps, "key-1")
		if err != nil {
			t.Fatalf("capture %d: %v", i, err)
		}
		if conf.Status != cart.SessionCaptured {
			t.Fatalf("capture %d: expected captured, got %s", i, conf.Status)
		}
	}
	if mock.Captures() != 1 {
		t.Fatalf("expected the retried capture to be replayed, got %d captures", mock.Captures())
	}
}

func TestPaypalCaptureRefusedBeforeApproval(t *testing.T) {
	p, mock := newPaypal(t)
	mock.FailCapture = true
	ctx := context.Background()

	data, err := p.Initiate(ctx, cart.Cart{ID: "cart_1", Total: 100, CurrencyCode: "usd"}, "key")
	if err != nil {
		t.Fatalf("initiating: %v", err)
	}

	conf, err := p.Confirm(ctx, cart.PaymentSession{ID: "ps_1", Data: data}, "key")
	if err != nil {
		t.Fatalf("confirming: %v", err)
	}
	if conf.Status != cart.SessionPending {
		t.Fatalf("expected an unapproved order to stay pending, got %s", conf.Status)
	}
}

func TestAmount(t *testing.T) {
	for minor, exp := range map[int64]string{0: "0.00", 5: "0.05", 50000: "500.00", 12345: "123.45", -250: "-2.50"} {
		if got := amount(minor); got != exp {
			t.Fatalf("amount(%d): expected %s, got %s", minor, exp, got)
		}
	}
}
