package order_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/irsalhamdi/storefront-checkout/commerce"
	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
	"github.com/irsalhamdi/storefront-checkout/core/flight"
	"github.com/irsalhamdi/storefront-checkout/core/invalidate"
	"github.com/irsalhamdi/storefront-checkout/core/order"
	"github.com/irsalhamdi/storefront-checkout/core/payment"
	"github.com/sirupsen/logrus"
)

type invalidations struct {
	mu     sync.Mutex
	events map[string]int
}

func (i *invalidations) Invalidate(_ context.Context, d invalidate.Domain, id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.events == nil {
		i.events = make(map[string]int)
	}
	i.events[string(d)+":"+id]++
}

func (i *invalidations) count(ev string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.events[ev]
}

type manual struct {
	payment.Manual
	mu       sync.Mutex
	confirms int
}

func (p *manual) Confirm(ctx context.Context, s cart.PaymentSession, key string) (payment.Confirmation, error) {
	p.mu.Lock()
	p.confirms++
	p.mu.Unlock()
	return p.Manual.Confirm(ctx, s, key)
}

type env struct {
	co     *order.Coordinator
	guard  *payment.Guard
	mem    *commerce.Memory
	locker *flight.Memory
	prov   *manual
	inval  *invalidations
	cartID string
}

func newEnv(t *testing.T) env {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	e := env{
		mem:    commerce.NewMemory(commerce.DefaultCatalog()),
		locker: flight.NewMemory(),
		prov:   &manual{},
		inval:  &invalidations{},
	}
	ledger := payment.NewMemoryLedger()
	e.guard = payment.NewGuard(log, e.mem, e.locker, ledger, payment.NewProviders(e.prov), e.inval, payment.Config{})
	e.co = order.NewCoordinator(log, e.mem, e.locker, e.guard, order.NewMemoryStore(), e.inval)

	ctx := context.Background()
	c, err := e.mem.CreateCart(ctx, "reg_mx")
	if err != nil {
		t.Fatalf("creating cart: %v", err)
	}
	if _, err := e.mem.AddLineItem(ctx, c.ID, cart.ItemNew{VariantID: "variant_starter_kit", Quantity: 2}); err != nil {
		t.Fatalf("adding item: %v", err)
	}
	e.cartID = c.ID
	return e
}

func (e env) bind(t *testing.T) {
	t.Helper()
	if _, err := e.guard.Bind(context.Background(), e.cartID, ""); err != nil {
		t.Fatalf("binding: %v", err)
	}
}

// finalize moves the active session the way a provider notification does.
func (e env) finalize(t *testing.T, status cart.SessionStatus, raw string) {
	t.Helper()
	ctx := context.Background()

	c, err := e.mem.GetCart(ctx, e.cartID, true)
	if err != nil {
		t.Fatalf("fetching cart: %v", err)
	}
	up := cart.SessionUp{Status: status, Data: map[string]any{"status": raw}}
	if _, err := e.mem.UpdatePaymentSession(ctx, e.cartID, c.ActiveSession().ID, up); err != nil {
		t.Fatalf("updating session: %v", err)
	}
}

func TestCompleteAfterProviderCapture(t *testing.T) {
	e := newEnv(t)
	e.bind(t)
	e.finalize(t, cart.SessionCaptured, "succeeded")
	ctx := context.Background()

	res, err := e.co.Complete(ctx, e.cartID)
	if err != nil {
		t.Fatalf("completing a captured cart: %v", err)
	}
	if res.Replayed || res.Order.Total != 50000 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if e.prov.confirms != 0 {
		t.Fatalf("a captured payment must not be confirmed again, got %d confirms", e.prov.confirms)
	}

	again, err := e.co.Complete(ctx, e.cartID)
	if err != nil || !again.Replayed || again.Order.ID != res.Order.ID {
		t.Fatalf("expected the order replayed, got %+v: %v", again, err)
	}
}

func TestCompleteAfterRefundIsTerminal(t *testing.T) {
	e := newEnv(t)
	e.bind(t)
	e.finalize(t, cart.SessionRefunded, "refunded")

	_, err := e.co.Complete(context.Background(), e.cartID)
	if c, _ := failure.ClassOf(err); c != failure.Terminal {
		t.Fatalf("expected a refunded payment to stay terminal, got %v", err)
	}
	if c, _ := e.mem.GetCart(context.Background(), e.cartID, true); c.Completed() {
		t.Fatal("a refunded cart must stay open")
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.bind(t)
	ctx := context.Background()

	first, err := e.co.Complete(ctx, e.cartID)
	if err != nil {
		t.Fatalf("completing: %v", err)
	}
	if first.Replayed || first.Order.Total != 50000 || first.Order.Currency != "mxn" {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, err := e.co.Complete(ctx, e.cartID)
	if err != nil {
		t.Fatalf("completing again: %v", err)
	}
	if !second.Replayed || second.Order.ID != first.Order.ID {
		t.Fatalf("expected the same order replayed, got %+v", second)
	}

	if e.prov.confirms != 1 {
		t.Fatalf("expected one confirmation, got %d", e.prov.confirms)
	}
	if n := e.inval.count("orders:" + first.Order.ID); n != 1 {
		t.Fatalf("expected one orders invalidation, got %d", n)
	}

	got, err := e.co.Order(ctx, first.Order.ID)
	if err != nil {
		t.Fatalf("reading order: %v", err)
	}
	if got.CartID != e.cartID {
		t.Fatalf("expected order of cart %s, got %+v", e.cartID, got)
	}
}

func TestCompleteIsSingleFlight(t *testing.T) {
	e := newEnv(t)
	e.bind(t)
	ctx := context.Background()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	e.mem.CompleteFault = func(string) error {
		once.Do(func() { close(entered) })
		<-unblock
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.co.Complete(ctx, e.cartID)
		done <- err
	}()
	<-entered

	if _, err := e.co.Complete(ctx, e.cartID); !errors.Is(err, failure.ErrInProgress) {
		t.Fatalf("expected a second completion to be refused, got %v", err)
	}
	if _, err := e.guard.Bind(ctx, e.cartID, ""); !errors.Is(err, failure.ErrInProgress) {
		t.Fatalf("expected a bind during completion to be refused, got %v", err)
	}
	if _, err := e.guard.Ensure(ctx, e.cartID, ""); !errors.Is(err, failure.ErrInProgress) {
		t.Fatalf("expected ensure during completion to be refused, got %v", err)
	}

	close(unblock)
	if err := <-done; err != nil {
		t.Fatalf("completing: %v", err)
	}
	if e.locker.Held(e.cartID) {
		t.Fatal("expected lock to be released")
	}
}

func TestCompleteSurvivesCallerCancellation(t *testing.T) {
	e := newEnv(t)
	e.bind(t)

	ctx, cancel := context.WithCancel(context.Background())
	e.mem.CompleteFault = func(string) error {
		cancel()
		return nil
	}

	res, err := e.co.Complete(ctx, e.cartID)
	if err != nil {
		t.Fatalf("expected completion to finish after cancellation, got %v", err)
	}
	if res.Order.ID == "" {
		t.Fatal("expected an order")
	}
}

func TestCompleteRetryAfterBackendFailure(t *testing.T) {
	e := newEnv(t)
	e.bind(t)
	ctx := context.Background()

	e.mem.CompleteFault = func(string) error {
		return failure.New(failure.Backend, "backend_unavailable", "backend unavailable")
	}

	_, err := e.co.Complete(ctx, e.cartID)
	if c, _ := failure.ClassOf(err); c != failure.Backend {
		t.Fatalf("expected backend failure, got %v", err)
	}
	if e.locker.Held(e.cartID) {
		t.Fatal("expected lock to be released after a failure")
	}

	e.mem.CompleteFault = nil
	res, err := e.co.Complete(ctx, e.cartID)
	if err != nil {
		t.Fatalf("retrying: %v", err)
	}
	if res.Replayed {
		t.Fatal("expected the retry to place the order")
	}
	if e.prov.confirms != 1 {
		t.Fatalf("expected the retry not to confirm again, got %d confirmations", e.prov.confirms)
	}
}

func TestCompleteWithoutPayment(t *testing.T) {
	e := newEnv(t)

	_, err := e.co.Complete(context.Background(), e.cartID)
	fe, ok := failure.As(err)
	if !ok || fe.Reason != string(payment.NoActiveSession) {
		t.Fatalf("expected no active session, got %v", err)
	}
}

func TestCompleteGiftCardCart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.mem.UpdateCart(ctx, e.cartID, cart.Update{GiftCards: []string{"GIFT-1000"}}); err != nil {
		t.Fatalf("applying gift card: %v", err)
	}

	res, err := e.co.Complete(ctx, e.cartID)
	if err != nil {
		t.Fatalf("completing: %v", err)
	}
	if res.Order.Total != 0 || e.prov.confirms != 0 {
		t.Fatalf("expected a free order without provider, got %+v", res)
	}
}

func TestCompleteRejectedByBackend(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	c, err := e.mem.GetCart(ctx, e.cartID, true)
	if err != nil {
		t.Fatalf("fetching: %v", err)
	}
	co := order.NewCoordinator(logrus.New(), e.mem, e.locker, passThrough{}, order.NewMemoryStore(), e.inval)

	_, err = co.Complete(ctx, c.ID)
	if !errors.Is(err, order.ErrRejected) {
		t.Fatalf("expected rejection for an unpaid cart, got %v", err)
	}
}

type passThrough struct{}

func (passThrough) Settle(_ context.Context, c cart.Cart) (cart.Cart, error) { return c, nil }

func TestOrderNotFound(t *testing.T) {
	e := newEnv(t)

	_, err := e.co.Order(context.Background(), "order_missing")
	if c, _ := failure.ClassOf(err); c != failure.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
