package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/plutov/paypal/v4"
)

const PaypalID = "paypal"

type Paypal struct {
	client    *paypal.Client
	returnURL string
	cancelURL string
}

func NewPaypal(client *paypal.Client, returnURL, cancelURL string) *Paypal {
	return &Paypal{client: client, returnURL: returnURL, cancelURL: cancelURL}
}

func (p *Paypal) ID() string { return PaypalID }

func (p *Paypal) Initiate(ctx context.Context, c cart.Cart, key string) (map[string]any, error) {
	currency := strings.ToUpper(c.CurrencyCode)

	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: c.ID,
		CustomID:    key,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: currency,
			Value:    amount(c.Total),
		},
	}}

	app := &paypal.ApplicationContext{
		ReturnURL: p.returnURL,
		CancelURL: p.cancelURL,
	}

	ord, err := p.client.CreateOrderWithPaypalRequestID(ctx, "CAPTURE", units, nil, app, key)
	if err != nil {
		return nil, fmt.Errorf("creating paypal order: %w", err)
	}

	data := map[string]any{
		"id":     ord.ID,
		"status": ord.Status,
	}
	for _, l := range ord.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			data["approve_url"] = l.Href
		}
	}
	return data, nil
}

// Confirm captures the order under key so PayPal replays a retried capture.
// A failed capture is resolved by reading the order back, so confirming a
// captured order again reports it captured.
func (p *Paypal) Confirm(ctx context.Context, s cart.PaymentSession, key string) (Confirmation, error) {
	id, _ := s.Data["id"].(string)
	if id == "" {
		return Confirmation{}, fmt.Errorf("session[%s] carries no paypal order", s.ID)
	}

	var status string
	resp, err := p.client.CaptureOrderWithPaypalRequestId(ctx, id, paypal.CaptureOrderRequest{}, key+"-capture", nil)
	if err != nil {
		ord, gerr := p.client.GetOrder(ctx, id)
		if gerr != nil {
			return Confirmation{}, fmt.Errorf("capturing paypal order[%s]: %w", id, err)
		}
		status = ord.Status
	} else {
		status = resp.Status
	}

	return Confirmation{
		Status: paypalStatus(status),
		Data:   map[string]any{"id": id, "status": status},
	}, nil
}

func paypalStatus(s string) cart.SessionStatus {
	switch s {
	case "COMPLETED":
		return cart.SessionCaptured
	case "PAYER_ACTION_REQUIRED":
		return cart.SessionRequiresAction
	case "VOIDED":
		return cart.SessionError
	}
	return cart.SessionPending
}

// amount formats minor units the way the orders API expects them.
func amount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
