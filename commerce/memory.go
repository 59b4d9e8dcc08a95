package commerce

import (
	"context"
	"sync"
	"time"

	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
	"github.com/irsalhamdi/storefront-checkout/random"
)

type Variant struct {
	Title string
	Price int64
}

type ShippingOption struct {
	Name   string
	Amount int64
}

// Catalog is the reference data the in-memory backend prices carts with.
type Catalog struct {
	Regions    map[string]string
	Variants   map[string]Variant
	Shipping   map[string]ShippingOption
	Promotions map[string]int64
	GiftCards  map[string]int64
}

func DefaultCatalog() Catalog {
	return Catalog{
		Regions: map[string]string{
			"reg_mx": "mxn",
			"reg_us": "usd",
			"reg_eu": "eur",
		},
		Variants: map[string]Variant{
			"variant_starter_kit": {Title: "Starter kit", Price: 25000},
			"variant_shampoo":     {Title: "Shampoo", Price: 10000},
			"variant_conditioner": {Title: "Conditioner", Price: 15000},
			"variant_brush":       {Title: "Brush", Price: 5000},
		},
		Shipping: map[string]ShippingOption{
			"so_standard": {Name: "Standard", Amount: 0},
			"so_express":  {Name: "Express", Amount: 9900},
		},
		Promotions: map[string]int64{
			"WELCOME50": 5000,
		},
		GiftCards: map[string]int64{
			"GIFT-1000": 100000,
		},
	}
}

var (
	ErrUnknownRegion   = failure.New(failure.Validation, "unknown_region", "region does not exist")
	ErrUnknownVariant  = failure.New(failure.Validation, "unknown_variant", "variant does not exist")
	ErrUnknownOption   = failure.New(failure.Validation, "unknown_shipping_option", "shipping option does not exist")
	ErrUnknownCode     = failure.New(failure.Validation, "unknown_code", "promotion or gift card code does not exist")
	ErrItemNotFound    = failure.New(failure.NotFound, "line_item_not_found", "line item not found")
	ErrSessionNotFound = failure.New(failure.NotFound, "payment_session_not_found", "payment session not found")
)

// Memory is a commerce backend kept in process. It prices carts from its
// catalog and lets tests inject failures.
type Memory struct {
	mu        sync.Mutex
	catalog   Catalog
	carts     map[string]*cart.Cart
	completed map[string]cart.Completion
	displayID int64

	// DeleteFault, when set, is consulted before each line item deletion.
	DeleteFault func(cartID, itemID string) error
	// CompleteFault, when set, is consulted before each completion.
	CompleteFault func(cartID string) error
}

func NewMemory(catalog Catalog) *Memory {
	return &Memory{
		catalog:   catalog,
		carts:     make(map[string]*cart.Cart),
		completed: make(map[string]cart.Completion),
		displayID: 1000,
	}
}

func (m *Memory) CreateCart(_ context.Context, regionID string) (cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	currency, ok := m.catalog.Regions[regionID]
	if !ok {
		return cart.Cart{}, ErrUnknownRegion
	}

	c := &cart.Cart{
		ID:              random.ID("cart"),
		RegionID:        regionID,
		CurrencyCode:    currency,
		Items:           []cart.LineItem{},
		ShippingMethods: []cart.ShippingMethod{},
	}
	m.carts[c.ID] = c
	return clone(c), nil
}

// GetCart ignores fresh: there is no cache in front of the map.
func (m *Memory) GetCart(_ context.Context, id string, _ bool) (cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.carts[id]
	if !ok {
		return cart.Cart{}, failure.ErrCartNotFound
	}
	return clone(c), nil
}

func (m *Memory) UpdateCart(_ context.Context, id string, up cart.Update) (cart.Cart, error) {
	return m.edit(id, func(c *cart.Cart) error {
		if up.RegionID != nil {
			currency, ok := m.catalog.Regions[*up.RegionID]
			if !ok {
				return ErrUnknownRegion
			}
			c.RegionID, c.CurrencyCode = *up.RegionID, currency
		}
		if up.Email != nil {
			c.Email = *up.Email
		}
		if up.ShippingAddress != nil {
			a := *up.ShippingAddress
			c.ShippingAddress = &a
		}
		if up.BillingAddress != nil {
			a := *up.BillingAddress
			c.BillingAddress = &a
		}
		if up.PromoCodes != nil {
			for _, code := range up.PromoCodes {
				if _, ok := m.catalog.Promotions[code]; !ok {
					return ErrUnknownCode.WithFields(map[string]string{"promo_codes": code})
				}
			}
			c.PromoCodes = append([]string(nil), up.PromoCodes...)
		}
		if up.GiftCards != nil {
			cards := make([]cart.GiftCard, 0, len(up.GiftCards))
			for _, code := range up.GiftCards {
				bal, ok := m.catalog.GiftCards[code]
				if !ok {
					return ErrUnknownCode.WithFields(map[string]string{"gift_cards": code})
				}
				cards = append(cards, cart.GiftCard{Code: code, Balance: bal})
			}
			c.GiftCards = cards
		}
		return nil
	})
}

func (m *Memory) AddLineItem(_ context.Context, id string, it cart.ItemNew) (cart.Cart, error) {
	return m.edit(id, func(c *cart.Cart) error {
		v, ok := m.catalog.Variants[it.VariantID]
		if !ok {
			return ErrUnknownVariant.WithFields(map[string]string{"variant_id": it.VariantID})
		}

		if it.Metadata == (cart.Metadata{}) {
			for i := range c.Items {
				if c.Items[i].VariantID == it.VariantID && c.Items[i].Metadata == (cart.Metadata{}) {
					c.Items[i].Quantity += it.Quantity
					return nil
				}
			}
		}

		c.Items = append(c.Items, cart.LineItem{
			ID:        random.ID("item"),
			VariantID: it.VariantID,
			Title:     v.Title,
			Quantity:  it.Quantity,
			UnitPrice: v.Price,
			Metadata:  it.Metadata,
		})
		return nil
	})
}

func (m *Memory) UpdateLineItem(_ context.Context, id, itemID string, up cart.ItemUp) (cart.Cart, error) {
	return m.edit(id, func(c *cart.Cart) error {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items[i].Quantity = up.Quantity
				return nil
			}
		}
		return ErrItemNotFound
	})
}

func (m *Memory) DeleteLineItem(_ context.Context, id, itemID string) (cart.Cart, error) {
	m.mu.Lock()
	fault := m.DeleteFault
	m.mu.Unlock()

	if fault != nil {
		if err := fault(id, itemID); err != nil {
			return cart.Cart{}, err
		}
	}

	return m.edit(id, func(c *cart.Cart) error {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
				return nil
			}
		}
		return ErrItemNotFound
	})
}

func (m *Memory) AddShippingMethod(_ context.Context, id string, sm cart.ShippingNew) (cart.Cart, error) {
	return m.edit(id, func(c *cart.Cart) error {
		opt, ok := m.catalog.Shipping[sm.OptionID]
		if !ok {
			return ErrUnknownOption.WithFields(map[string]string{"option_id": sm.OptionID})
		}
		c.ShippingMethods = []cart.ShippingMethod{{
			ID:               random.ID("sm"),
			ShippingOptionID: sm.OptionID,
			Name:             opt.Name,
			Amount:           opt.Amount,
		}}
		return nil
	})
}

// CreatePaymentSession supersedes every live session of the cart and appends a
// new pending one.
func (m *Memory) CreatePaymentSession(_ context.Context, id string, ps cart.SessionNew) (cart.Cart, error) {
	return m.edit(id, func(c *cart.Cart) error {
		if c.PaymentCollection == nil {
			c.PaymentCollection = &cart.PaymentCollection{ID: random.ID("paycol")}
		}

		s := cart.PaymentSession{
			ID:         random.ID("ps"),
			ProviderID: ps.ProviderID,
			Status:     cart.SessionPending,
			Amount:     c.Total,
			Data:       copyData(ps.Data),
			CreatedAt:  time.Now().UTC(),
		}
		s.ClientSecret, _ = ps.Data["client_secret"].(string)

		col := c.PaymentCollection
		for i := range col.Sessions {
			if col.Sessions[i].SupersededBy == "" {
				col.Sessions[i].SupersededBy = s.ID
			}
		}
		col.Sessions = append(col.Sessions, s)
		return nil
	})
}

func (m *Memory) UpdatePaymentSession(_ context.Context, id, sessionID string, up cart.SessionUp) (cart.Cart, error) {
	return m.edit(id, func(c *cart.Cart) error {
		if c.PaymentCollection == nil {
			return ErrSessionNotFound
		}
		for i := range c.PaymentCollection.Sessions {
			s := &c.PaymentCollection.Sessions[i]
			if s.ID != sessionID {
				continue
			}
			if up.Status != "" {
				s.Status = up.Status
			}
			if s.Data == nil {
				s.Data = make(map[string]any)
			}
			for k, v := range up.Data {
				s.Data[k] = v
			}
			return nil
		}
		return ErrSessionNotFound
	}, allowCompleted())
}

// Complete places the order once. Completing a completed cart answers with
// the same order.
func (m *Memory) Complete(_ context.Context, id string) (cart.Completion, error) {
	m.mu.Lock()
	fault := m.CompleteFault
	m.mu.Unlock()

	if fault != nil {
		if err := fault(id); err != nil {
			return cart.Completion{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.carts[id]
	if !ok {
		return cart.Completion{}, failure.ErrCartNotFound
	}
	if comp, ok := m.completed[id]; ok {
		return comp, nil
	}

	if c.Total > 0 && !paid(c) {
		cp := clone(c)
		return cart.Completion{Type: cart.CompletionCart, Cart: &cp, Message: "payment is not authorized"}, nil
	}

	m.displayID++
	now := time.Now().UTC()
	c.CompletedAt = &now

	comp := cart.Completion{
		Type:      cart.CompletionOrder,
		OrderID:   random.ID("order"),
		DisplayID: m.displayID,
	}
	m.completed[id] = comp
	return comp, nil
}

type editOpt func(*editCfg)

type editCfg struct{ completed bool }

func allowCompleted() editOpt {
	return func(c *editCfg) { c.completed = true }
}

func (m *Memory) edit(id string, fn func(c *cart.Cart) error, opts ...editOpt) (cart.Cart, error) {
	var cfg editCfg
	for _, o := range opts {
		o(&cfg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.carts[id]
	if !ok {
		return cart.Cart{}, failure.ErrCartNotFound
	}
	if c.Completed() && !cfg.completed {
		return cart.Cart{}, failure.ErrCartCompleted
	}

	work := clone(c)
	if err := fn(&work); err != nil {
		return cart.Cart{}, err
	}
	m.price(&work)
	m.carts[id] = &work

	return clone(&work), nil
}

func (m *Memory) price(c *cart.Cart) {
	var subtotal, discount, shipping, gift int64
	for _, it := range c.Items {
		subtotal += it.Total()
	}
	for _, code := range c.PromoCodes {
		discount += m.catalog.Promotions[code]
	}
	if discount > subtotal {
		discount = subtotal
	}
	for _, sm := range c.ShippingMethods {
		shipping += sm.Amount
	}

	due := subtotal - discount + shipping
	for _, gc := range c.GiftCards {
		gift += gc.Balance
	}
	if gift > due {
		gift = due
	}

	c.Subtotal = subtotal
	c.DiscountTotal = discount
	c.ShippingTotal = shipping
	c.GiftCardTotal = gift
	c.Total = due - gift
	if c.PaymentCollection != nil {
		c.PaymentCollection.Amount = c.Total
	}
}

func paid(c *cart.Cart) bool {
	s := c.ActiveSession()
	if s == nil {
		return false
	}
	return s.Status == cart.SessionAuthorized || s.Status == cart.SessionCaptured
}

func clone(c *cart.Cart) cart.Cart {
	cp := *c
	cp.Items = append([]cart.LineItem{}, c.Items...)
	cp.ShippingMethods = append([]cart.ShippingMethod{}, c.ShippingMethods...)
	cp.PromoCodes = append([]string(nil), c.PromoCodes...)
	cp.GiftCards = append([]cart.GiftCard(nil), c.GiftCards...)
	if c.ShippingAddress != nil {
		a := *c.ShippingAddress
		cp.ShippingAddress = &a
	}
	if c.BillingAddress != nil {
		a := *c.BillingAddress
		cp.BillingAddress = &a
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	if c.PaymentCollection != nil {
		col := *c.PaymentCollection
		col.Sessions = make([]cart.PaymentSession, len(c.PaymentCollection.Sessions))
		for i, s := range c.PaymentCollection.Sessions {
			s.Data = copyData(s.Data)
			col.Sessions[i] = s
		}
		cp.PaymentCollection = &col
	}
	return cp
}

func copyData(d map[string]any) map[string]any {
	if d == nil {
		return nil
	}
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
