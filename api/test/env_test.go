package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/storefront-checkout/api"
	"github.com/irsalhamdi/storefront-checkout/api/background"
	"github.com/irsalhamdi/storefront-checkout/commerce"
	"github.com/irsalhamdi/storefront-checkout/commerce/commercetest"
	"github.com/irsalhamdi/storefront-checkout/core/bundle"
	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/flight"
	"github.com/irsalhamdi/storefront-checkout/core/invalidate"
	"github.com/irsalhamdi/storefront-checkout/core/order"
	"github.com/irsalhamdi/storefront-checkout/core/payment"
	"github.com/irsalhamdi/storefront-checkout/core/payment/paymenttest"
	"github.com/irsalhamdi/storefront-checkout/rate"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
)

const webhookSecret = "whsec_test"

type TestEnv struct {
	*httptest.Server
	Backend     *commercetest.Server
	Stripe      *paymenttest.Stripe
	Paypal      *paymenttest.Paypal
	Invalidated *invalidate.Recorder

	bg     *background.Background
	client *http.Client
}

func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	env := &TestEnv{
		Backend:     commercetest.New(commerce.NewMemory(commerce.DefaultCatalog())),
		Stripe:      paymenttest.NewStripe(),
		Paypal:      paymenttest.NewPaypal(),
		Invalidated: &invalidate.Recorder{},
		bg:          background.New(log),
	}

	backendSrv := httptest.NewServer(env.Backend.Handler())
	t.Cleanup(backendSrv.Close)
	stripeSrv := httptest.NewServer(env.Stripe.Handler())
	t.Cleanup(stripeSrv.Close)
	paypalSrv := httptest.NewServer(env.Paypal.Handler())
	t.Cleanup(paypalSrv.Close)

	repo := commerce.NewClient(log, commerce.Config{URL: backendSrv.URL, Timeout: 5 * time.Second})
	fanout := invalidate.NewFanout(log, env.bg, time.Second, env.Invalidated)

	pp, err := paypal.NewClient("client", "secret", paypalSrv.URL)
	if err != nil {
		t.Fatalf("building paypal client: %v", err)
	}
	if _, err := pp.GetAccessToken(context.Background()); err != nil {
		t.Fatalf("getting paypal token: %v", err)
	}

	strp := payment.NewStripe(payment.NewStripeAPI("sk_test_123", stripeSrv.URL), "pm_card_visa")
	providers := payment.NewProviders(
		payment.Manual{},
		strp,
		payment.NewPaypal(pp, "https://shop.test/return", "https://shop.test/cancel"),
	)

	locker := flight.NewMemory()
	ledger := payment.NewMemoryLedger()
	guard := payment.NewGuard(log, repo, locker, ledger, providers, fanout, payment.Config{DefaultProvider: payment.StripeID})
	remover := bundle.NewRemover(log, repo, bundle.Policy{Retries: 2, Interval: time.Millisecond})
	carts := cart.NewService(log, repo, payment.Snapshots(ledger), remover, fanout)
	coord := order.NewCoordinator(log, repo, locker, guard, order.NewMemoryStore(), fanout)

	limiter := rate.NewLimiter(1000, time.Minute, rate.Every(time.Millisecond))
	t.Cleanup(limiter.Close)

	sm := scs.New()
	sm.Lifetime = time.Hour

	env.Server = httptest.NewServer(api.APIMux(api.APIConfig{
		Log:                 log,
		Session:             sm,
		Carts:               carts,
		Guard:               guard,
		Coordinator:         coord,
		Fanout:              fanout,
		Webhook:             payment.NewWebhook(log, repo, fanout, strp),
		StripeWebhookSecret: webhookSecret,
		Limiter:             limiter,
	}))
	t.Cleanup(env.Server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("creating cookie jar: %v", err)
	}
	env.client = env.Server.Client()
	env.client.Jar = jar

	return env
}

// do sends in as JSON and decodes the response into out when given.
func (env *TestEnv) do(t *testing.T, method, path string, in, out any) int {
	t.Helper()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		body = bytes.NewReader(b)
	}

	return env.send(t, method, path, body, nil, out)
}

func (env *TestEnv) send(t *testing.T, method, path string, body io.Reader, header http.Header, out any) int {
	t.Helper()

	r, err := http.NewRequest(method, env.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		r.Header[k] = v
	}

	w, err := env.client.Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if out != nil && w.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s response (status %d): %v", method, path, w.StatusCode, err)
		}
	}
	return w.StatusCode
}

func (env *TestEnv) expect(t *testing.T, exp int, method, path string, in, out any) {
	t.Helper()

	var raw json.RawMessage
	status := env.do(t, method, path, in, &raw)
	if status != exp {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, exp, status, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, path, err)
		}
	}
}

// settle waits for the background invalidations to be delivered.
func (env *TestEnv) settle(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.bg.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
}

func cartPath(id string, parts ...any) string {
	p := "/carts/" + id
	for _, part := range parts {
		p += fmt.Sprintf("/%v", part)
	}
	return p
}
