package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderCompletedEvent is published once an order reaches completed. EventID
// lets consumers drop redeliveries.
type OrderCompletedEvent struct {
	EventID     string          `json:"event_id"`
	OrderID     string          `json:"order_id"`
	OrderNumber int64           `json:"order_number"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TerminalID  string          `json:"terminal_id,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
