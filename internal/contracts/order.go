package contracts

import "time"

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Status represents order status as reported by the gateway.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusFilled    Status = "FILLED"
	StatusCanceled  Status = "CANCELED"
	StatusRejected  Status = "REJECTED"
)

// LegOrder is a single-leg closing order handed to the gateway when the
// monitor unwinds a position. The two legs of a spread are closed as a
// best-effort pair; the venue gives no atomic two-leg guarantee.
type LegOrder struct {
	Symbol    string    `json:"symbol"`
	Leg       OptionLeg `json:"leg"`
	Side      OrderSide `json:"side"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderResult is the gateway's response to a submission.
type OrderResult struct {
	OrderID     string    `json:"order_id"`
	Status      Status    `json:"status"`
	FilledQty   int       `json:"filled_qty"`
	FilledPrice float64   `json:"filled_price"`
	Message     string    `json:"message,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsFilled reports whether the order is completely filled.
func (r *OrderResult) IsFilled() bool {
	return r.Status == StatusFilled
}
