// Package invalidate tells downstream readers that a cached view of a cart,
// customer or order is stale.
package invalidate

import (
	"context"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront-checkout/api/background"
	"github.com/sirupsen/logrus"
)

type Domain string

const (
	Carts     Domain = "carts"
	Customers Domain = "customers"
	Orders    Domain = "orders"
)

func ParseDomain(s string) (Domain, error) {
	switch d := Domain(s); d {
	case Carts, Customers, Orders:
		return d, nil
	}
	return "", fmt.Errorf("unknown cache domain %q", s)
}

type Event struct {
	Domain Domain    `json:"domain"`
	ID     string    `json:"id,omitempty"`
	At     time.Time `json:"at"`
}

// Sink receives invalidation events. An empty Event.ID invalidates the whole
// partition.
type Sink interface {
	Invalidate(ctx context.Context, ev Event) error
}

type Fanout struct {
	log     logrus.FieldLogger
	bg      *background.Background
	sinks   []Sink
	timeout time.Duration
}

func NewFanout(log logrus.FieldLogger, bg *background.Background, timeout time.Duration, sinks ...Sink) *Fanout {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fanout{
		log:     log,
		bg:      bg,
		sinks:   sinks,
		timeout: timeout,
	}
}

// Invalidate dispatches the event to every sink in the background. It never
// fails the caller: sink errors are logged.
func (f *Fanout) Invalidate(ctx context.Context, domain Domain, id string) {
	ev := Event{Domain: domain, ID: id, At: time.Now().UTC()}
	ctx = context.WithoutCancel(ctx)

	f.bg.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		for _, s := range f.sinks {
			if err := s.Invalidate(ctx, ev); err != nil {
				f.log.WithFields(logrus.Fields{
					"domain": ev.Domain,
					"id":     ev.ID,
					"sink":   fmt.Sprintf("%T", s),
				}).Errorf("cache invalidation failed: %v", err)
			}
		}
	})
}
