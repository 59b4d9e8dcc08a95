package cart

// Snapshot is the fingerprint of the cart state a payment session was created
// against. Snapshots are compared, never merged.
type Snapshot struct {
	CartID           string `json:"cart_id"`
	Total            int64  `json:"total"`
	CurrencyCode     string `json:"currency_code"`
	RegionID         string `json:"region_id"`
	PaymentSessionID string `json:"payment_session_id,omitempty"`
}

func TakeSnapshot(c Cart) Snapshot {
	s := Snapshot{
		CartID:       c.ID,
		Total:        c.Total,
		CurrencyCode: c.CurrencyCode,
		RegionID:     c.RegionID,
	}
	if ps := c.PendingSession(); ps != nil {
		s.PaymentSessionID = ps.ID
	}
	return s
}

// HasChanged reports whether cur no longer matches old. The session half of the
// comparison holds because a cart has at most one pending session: if the id
// bound in old is not the pending id in cur, it no longer resolves to one.
func HasChanged(old, cur Snapshot) bool {
	switch {
	case old.CartID != cur.CartID:
		return true
	case old.Total != cur.Total:
		return true
	case old.CurrencyCode != cur.CurrencyCode:
		return true
	case old.RegionID != cur.RegionID:
		return true
	}
	return old.PaymentSessionID != cur.PaymentSessionID
}
