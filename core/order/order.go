package order

import "time"

// Order is the result of a completed cart. A cart maps to at most one order.
type Order struct {
	ID        string    `json:"id" db:"order_id"`
	CartID    string    `json:"cart_id" db:"cart_id"`
	DisplayID int64     `json:"display_id" db:"display_id"`
	Total     int64     `json:"total" db:"total"`
	Currency  string    `json:"currency_code" db:"currency_code"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Result is what a completion call returns. Replayed is set when the order
// already existed and no new completion took place.
type Result struct {
	Order    Order `json:"order"`
	Replayed bool  `json:"already_completed"`
}
