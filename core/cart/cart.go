package cart

import (
	"time"
)

type Cart struct {
	ID                string             `json:"id"`
	Email             string             `json:"email,omitempty"`
	CurrencyCode      string             `json:"currency_code"`
	RegionID          string             `json:"region_id"`
	Subtotal          int64              `json:"subtotal"`
	ShippingTotal     int64              `json:"shipping_total"`
	DiscountTotal     int64              `json:"discount_total"`
	GiftCardTotal     int64              `json:"gift_card_total"`
	Total             int64              `json:"total"`
	ShippingAddress   *Address           `json:"shipping_address,omitempty"`
	BillingAddress    *Address           `json:"billing_address,omitempty"`
	Items             []LineItem         `json:"items"`
	ShippingMethods   []ShippingMethod   `json:"shipping_methods"`
	PromoCodes        []string           `json:"promo_codes,omitempty"`
	GiftCards         []GiftCard         `json:"gift_cards,omitempty"`
	PaymentCollection *PaymentCollection `json:"payment_collection,omitempty"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
}

type Address struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Company     string `json:"company,omitempty"`
	Address1    string `json:"address_1" validate:"required"`
	Address2    string `json:"address_2,omitempty"`
	City        string `json:"city" validate:"required"`
	PostalCode  string `json:"postal_code" validate:"required"`
	Province    string `json:"province,omitempty"`
	CountryCode string `json:"country_code" validate:"required,len=2"`
	Phone       string `json:"phone,omitempty"`
}

type Metadata struct {
	BundleID  string `json:"bundle_id,omitempty"`
	BundledBy string `json:"bundled_by,omitempty"`
}

type LineItem struct {
	ID        string   `json:"id"`
	VariantID string   `json:"variant_id"`
	Title     string   `json:"title"`
	Quantity  int64    `json:"quantity"`
	UnitPrice int64    `json:"unit_price"`
	Metadata  Metadata `json:"metadata"`
}

func (li LineItem) Total() int64 { return li.UnitPrice * li.Quantity }

type ShippingMethod struct {
	ID               string `json:"id"`
	ShippingOptionID string `json:"shipping_option_id"`
	Name             string `json:"name"`
	Amount           int64  `json:"amount"`
}

type GiftCard struct {
	Code    string `json:"code"`
	Balance int64  `json:"balance"`
}

type SessionStatus string

const (
	SessionPending        SessionStatus = "pending"
	SessionRequiresAction SessionStatus = "requires_action"
	SessionAuthorized     SessionStatus = "authorized"
	SessionCaptured       SessionStatus = "captured"
	SessionRefunded       SessionStatus = "refunded"
	SessionError          SessionStatus = "error"
)

type PaymentSession struct {
	ID           string         `json:"id"`
	ProviderID   string         `json:"provider_id"`
	Status       SessionStatus  `json:"status"`
	Amount       int64          `json:"amount"`
	Data         map[string]any `json:"data"`
	ClientSecret string         `json:"client_secret,omitempty"`
	SupersededBy string         `json:"superseded_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Pending reports whether the session is the live pending attempt of its cart.
// A superseded session keeps its last status but is abandoned.
func (s PaymentSession) Pending() bool {
	return s.Status == SessionPending && s.SupersededBy == ""
}

// ProviderStatus is the raw status the provider reported in the session payload.
func (s PaymentSession) ProviderStatus() string {
	v, _ := s.Data["status"].(string)
	return v
}

type PaymentCollection struct {
	ID       string           `json:"id"`
	Amount   int64            `json:"amount"`
	Sessions []PaymentSession `json:"payment_sessions"`
}

// ActiveSession returns the newest session that has not been superseded.
func (c Cart) ActiveSession() *PaymentSession {
	if c.PaymentCollection == nil {
		return nil
	}
	ss := c.PaymentCollection.Sessions
	for i := len(ss) - 1; i >= 0; i-- {
		if ss[i].SupersededBy == "" {
			s := ss[i]
			return &s
		}
	}
	return nil
}

// PendingSession returns the cart's single pending session, if any.
func (c Cart) PendingSession() *PaymentSession {
	s := c.ActiveSession()
	if s == nil || !s.Pending() {
		return nil
	}
	return s
}

func (c Cart) Item(id string) (LineItem, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return LineItem{}, false
}

// PaidByGiftCard reports whether gift cards cover the whole cart.
func (c Cart) PaidByGiftCard() bool {
	return len(c.GiftCards) > 0 && c.Total == 0
}

func (c Cart) Completed() bool { return c.CompletedAt != nil }

type Update struct {
	Email           *string  `json:"email" validate:"omitempty,email"`
	RegionID        *string  `json:"region_id"`
	ShippingAddress *Address `json:"shipping_address"`
	BillingAddress  *Address `json:"billing_address"`
	PromoCodes      []string `json:"promo_codes"`
	GiftCards       []string `json:"gift_cards"`
}

type ItemNew struct {
	VariantID string   `json:"variant_id" validate:"required"`
	Quantity  int64    `json:"quantity" validate:"required,gte=1,lte=1000"`
	Metadata  Metadata `json:"metadata"`
}

type ItemUp struct {
	Quantity int64 `json:"quantity" validate:"gte=1,lte=1000"`
}

type ShippingNew struct {
	OptionID string `json:"option_id" validate:"required"`
}

type SessionNew struct {
	ProviderID string         `json:"provider_id"`
	Data       map[string]any `json:"data"`
}

// SessionUp records what the provider reported for a session. Data is merged
// into the existing payload.
type SessionUp struct {
	Status SessionStatus  `json:"status"`
	Data   map[string]any `json:"data"`
}

// Completion is the backend's answer to a complete call: either an order or the
// unmodified cart together with the reason it could not be completed.
type Completion struct {
	Type      string `json:"type"`
	OrderID   string `json:"order_id,omitempty"`
	DisplayID int64  `json:"display_id,omitempty"`
	Cart      *Cart  `json:"cart,omitempty"`
	Message   string `json:"message,omitempty"`
}

const (
	CompletionOrder = "order"
	CompletionCart  = "cart"
)
