// Package payment keeps a cart bound to exactly one valid provider session.
package payment

import (
	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
)

type Reason string

const (
	NoActiveSession   Reason = "no_active_session"
	CartMismatch      Reason = "cart_mismatch"
	TotalChanged      Reason = "total_changed"
	CurrencyChanged   Reason = "currency_changed"
	RegionChanged     Reason = "region_changed"
	SessionSuperseded Reason = "session_superseded"
	PaymentFinalized  Reason = "payment_finalized"
	PaymentFailed     Reason = "payment_failed"
)

var messages = map[Reason]string{
	NoActiveSession:   "no active session",
	CartMismatch:      "session bound to different cart",
	TotalChanged:      "cart total changed",
	CurrencyChanged:   "currency changed",
	RegionChanged:     "region changed",
	SessionSuperseded: "session superseded",
	PaymentFinalized:  "payment already finalized",
	PaymentFailed:     "payment failed",
}

func (r Reason) Message() string { return messages[r] }

type Validation struct {
	Valid          bool   `json:"valid"`
	Reason         Reason `json:"reason,omitempty"`
	Message        string `json:"message,omitempty"`
	ShouldRecreate bool   `json:"should_recreate"`
}

// Err turns an invalid result into a classified error: terminal for a
// finalized payment, staleness for everything a new session would fix.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	class := failure.Staleness
	if !v.ShouldRecreate {
		class = failure.Terminal
	}
	return failure.New(class, string(v.Reason), v.Message)
}

// Validate checks session against the cart it was bound to. The first failing
// check wins. A session the provider already finalized is never offered for
// recreation, whichever check failed first.
func Validate(c cart.Cart, s *cart.PaymentSession, bound cart.Snapshot) Validation {
	reason := check(c, s, bound)
	if reason == "" {
		return Validation{Valid: true}
	}
	return Validation{
		Reason:         reason,
		Message:        reason.Message(),
		ShouldRecreate: reason != PaymentFinalized && !Terminal(s),
	}
}

func check(c cart.Cart, s *cart.PaymentSession, bound cart.Snapshot) Reason {
	switch {
	case s == nil:
		return NoActiveSession
	case bound.CartID != c.ID:
		return CartMismatch
	case bound.Total != c.Total:
		return TotalChanged
	case bound.CurrencyCode != c.CurrencyCode:
		return CurrencyChanged
	case bound.RegionID != c.RegionID:
		return RegionChanged
	case s.SupersededBy != "" || (bound.PaymentSessionID != "" && bound.PaymentSessionID != s.ID):
		return SessionSuperseded
	case Terminal(s):
		return PaymentFinalized
	case s.Status == cart.SessionError:
		return PaymentFailed
	}
	return ""
}

// Terminal reports whether the provider already took or returned the money.
func Terminal(s *cart.PaymentSession) bool {
	if s == nil {
		return false
	}
	switch s.ProviderStatus() {
	case "succeeded", "refunded":
		return true
	}
	return s.Status == cart.SessionCaptured || s.Status == cart.SessionRefunded
}

// Captured reports whether the provider took the money and kept it.
func Captured(s *cart.PaymentSession) bool {
	if s == nil || s.Status == cart.SessionRefunded || s.ProviderStatus() == "refunded" {
		return false
	}
	return s.Status == cart.SessionCaptured || s.ProviderStatus() == "succeeded"
}

// sessionByID finds a session of the cart whatever its state.
func sessionByID(c cart.Cart, id string) *cart.PaymentSession {
	if c.PaymentCollection == nil || id == "" {
		return nil
	}
	for _, s := range c.PaymentCollection.Sessions {
		if s.ID == id {
			s := s
			return &s
		}
	}
	return nil
}
