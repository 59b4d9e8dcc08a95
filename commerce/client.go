// Package commerce talks to the commerce backend that owns carts and orders.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

type Config struct {
	URL            string
	PublishableKey string
	Timeout        time.Duration
	// FailureThreshold is the count of consecutive backend failures that opens
	// the breaker.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client implements cart.Repository over the backend's store API. Backend and
// network failures count against a circuit breaker; client errors do not.
type Client struct {
	log  logrus.FieldLogger
	base string
	key  string
	http *http.Client
	cb   *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(log logrus.FieldLogger, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	st := gobreaker.Settings{
		Name:        "commerce",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			class, ok := failure.ClassOf(err)
			return ok && class != failure.Backend
		},
	}

	return &Client{
		log:  log,
		base: strings.TrimRight(cfg.URL, "/"),
		key:  cfg.PublishableKey,
		http: &http.Client{Timeout: cfg.Timeout},
		cb:   gobreaker.NewCircuitBreaker[[]byte](st),
	}
}

type cartEnvelope struct {
	Cart cart.Cart `json:"cart"`
}

func (c *Client) CreateCart(ctx context.Context, regionID string) (cart.Cart, error) {
	in := map[string]string{"region_id": regionID}
	return c.cart(ctx, http.MethodPost, "/carts", in, false)
}

func (c *Client) GetCart(ctx context.Context, id string, fresh bool) (cart.Cart, error) {
	return c.cart(ctx, http.MethodGet, "/carts/"+url.PathEscape(id), nil, fresh)
}

func (c *Client) UpdateCart(ctx context.Context, id string, up cart.Update) (cart.Cart, error) {
	return c.cart(ctx, http.MethodPost, "/carts/"+url.PathEscape(id), up, false)
}

func (c *Client) AddLineItem(ctx context.Context, id string, it cart.ItemNew) (cart.Cart, error) {
	return c.cart(ctx, http.MethodPost, fmt.Sprintf("/carts/%s/line-items", url.PathEscape(id)), it, false)
}

func (c *Client) UpdateLineItem(ctx context.Context, id, itemID string, up cart.ItemUp) (cart.Cart, error) {
	path := fmt.Sprintf("/carts/%s/line-items/%s", url.PathEscape(id), url.PathEscape(itemID))
	return c.cart(ctx, http.MethodPost, path, up, false)
}

func (c *Client) DeleteLineItem(ctx context.Context, id, itemID string) (cart.Cart, error) {
	path := fmt.Sprintf("/carts/%s/line-items/%s", url.PathEscape(id), url.PathEscape(itemID))
	return c.cart(ctx, http.MethodDelete, path, nil, false)
}

func (c *Client) AddShippingMethod(ctx context.Context, id string, sm cart.ShippingNew) (cart.Cart, error) {
	return c.cart(ctx, http.MethodPost, fmt.Sprintf("/carts/%s/shipping-methods", url.PathEscape(id)), sm, false)
}

func (c *Client) CreatePaymentSession(ctx context.Context, id string, ps cart.SessionNew) (cart.Cart, error) {
	return c.cart(ctx, http.MethodPost, fmt.Sprintf("/carts/%s/payment-sessions", url.PathEscape(id)), ps, false)
}

func (c *Client) UpdatePaymentSession(ctx context.Context, id, sessionID string, up cart.SessionUp) (cart.Cart, error) {
	path := fmt.Sprintf("/carts/%s/payment-sessions/%s", url.PathEscape(id), url.PathEscape(sessionID))
	return c.cart(ctx, http.MethodPost, path, up, false)
}

func (c *Client) Complete(ctx context.Context, id string) (cart.Completion, error) {
	var comp cart.Completion
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/carts/%s/complete", url.PathEscape(id)), nil, false, &comp); err != nil {
		return cart.Completion{}, err
	}
	return comp, nil
}

func (c *Client) cart(ctx context.Context, method, path string, in any, fresh bool) (cart.Cart, error) {
	var env cartEnvelope
	if err := c.do(ctx, method, path, in, fresh, &env); err != nil {
		return cart.Cart{}, err
	}
	return env.Cart, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, fresh bool, out any) error {
	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, in, fresh)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return failure.Wrap(err, failure.Backend, "backend_circuit_open", "commerce backend unavailable")
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return failure.Wrap(err, failure.Backend, "backend_bad_response", "commerce backend sent an unreadable response")
	}
	return nil
}

type errorBody struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in any, fresh bool) ([]byte, error) {
	var rd io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("x-publishable-api-key", c.key)
	}
	if fresh {
		req.Header.Set("Cache-Control", "no-store")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failure.Wrap(err, failure.Backend, "backend_unreachable", "commerce backend unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, failure.Wrap(err, failure.Backend, "backend_unreachable", "reading commerce backend response")
	}

	if resp.StatusCode < 400 {
		return body, nil
	}

	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	if eb.Message == "" {
		eb.Message = http.StatusText(resp.StatusCode)
	}
	cause := fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, eb.Message)

	c.log.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
		"type":   eb.Type,
	}).Debug("commerce backend error")

	switch {
	case resp.StatusCode == http.StatusNotFound && (eb.Type == "" || eb.Type == failure.ErrCartNotFound.Reason):
		return nil, failure.Wrap(cause, failure.NotFound, failure.ErrCartNotFound.Reason, failure.ErrCartNotFound.Message)
	case resp.StatusCode == http.StatusNotFound:
		return nil, failure.Wrap(cause, failure.NotFound, eb.Type, eb.Message)
	case eb.Type == failure.ErrCartCompleted.Reason:
		return nil, failure.Wrap(cause, failure.Terminal, eb.Type, eb.Message)
	case resp.StatusCode < 500:
		reason := eb.Type
		if reason == "" {
			reason = "backend_rejected"
		}
		return nil, failure.Wrap(cause, failure.Validation, reason, eb.Message).WithFields(eb.Fields)
	}
	return nil, failure.Wrap(cause, failure.Backend, "backend_failed", eb.Message)
}
