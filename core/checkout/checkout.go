// Package checkout decides which checkout steps a cart may enter. It does not
// navigate; the storefront owns the cursor and asks before moving it.
package checkout

import (
	"fmt"

	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
)

type Step string

const (
	Address  Step = "address"
	Delivery Step = "delivery"
	Payment  Step = "payment"
	Review   Step = "review"
	Complete Step = "complete"
)

var Steps = []Step{Address, Delivery, Payment, Review, Complete}

func ParseStep(s string) (Step, error) {
	for _, st := range Steps {
		if string(st) == s {
			return st, nil
		}
	}
	return "", failure.New(failure.Validation, "unknown_step", "unknown checkout step").
		WithFields(map[string]string{"step": fmt.Sprintf("%q is not a checkout step", s)})
}

func (s Step) index() int {
	for i, st := range Steps {
		if st == s {
			return i
		}
	}
	return -1
}

// Facts are the inputs the cart alone does not carry.
type Facts struct {
	PaymentValid bool
	Confirmed    bool
}

var ErrStepLocked = failure.New(failure.Validation, "step_locked", "checkout step can not be entered yet")

type Machine struct{}

// Check reports whether step may be entered. Preconditions accumulate: every
// earlier step's requirements must hold as well. Missing ones come back as
// field errors.
func (Machine) Check(c cart.Cart, step Step, f Facts) error {
	idx := step.index()
	if idx < 0 {
		return ErrStepLocked.WithFields(map[string]string{"step": "unknown"})
	}
	if c.Completed() {
		return failure.ErrCartCompleted
	}

	missing := make(map[string]string)
	for _, st := range Steps[1 : idx+1] {
		for k, v := range requirements(c, st, f) {
			missing[k] = v
		}
	}
	if len(missing) > 0 {
		return ErrStepLocked.WithFields(missing)
	}
	return nil
}

// Furthest returns the last step the cart may enter. Completion needs an
// explicit confirmation so it is never suggested.
func (m Machine) Furthest(c cart.Cart, f Facts) Step {
	f.Confirmed = false
	last := Address
	for _, st := range Steps[1 : len(Steps)-1] {
		if len(requirements(c, st, f)) > 0 {
			break
		}
		last = st
	}
	return last
}

func requirements(c cart.Cart, step Step, f Facts) map[string]string {
	missing := make(map[string]string)

	switch step {
	case Delivery:
		if c.ShippingAddress == nil {
			missing["shipping_address"] = "shipping address is required"
		}
		if c.BillingAddress == nil {
			missing["billing_address"] = "billing address is required"
		}
		if c.Email == "" {
			missing["email"] = "email is required"
		}

	case Payment:
		if len(c.ShippingMethods) == 0 && !c.PaidByGiftCard() {
			missing["shipping_methods"] = "a shipping method must be selected"
		}

	case Review:
		if !f.PaymentValid && !c.PaidByGiftCard() {
			missing["payment_session"] = "a valid payment session is required"
		}

	case Complete:
		if !f.Confirmed {
			missing["confirmed"] = "the order must be confirmed"
		}
	}

	return missing
}
