package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPreparing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodQRIS     PaymentMethod = "qris"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer, PaymentMethodQRIS:
		return true
	}
	return false
}

// OrderLine is written once at commit time. UnitPrice and Subtotal are a
// snapshot of the cart and are never re-read from the catalog.
type OrderLine struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

func (l OrderLine) StockKey() StockKey {
	return StockKey{ProductID: l.ProductID, VariantID: l.VariantID}
}

type Order struct {
	ID            string          `json:"id"`
	OrderNumber   int64           `json:"order_number"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	EmployeeID    string          `json:"employee_id"`
	CustomerID    string          `json:"customer_id,omitempty"`
	TableID       string          `json:"table_id,omitempty"`
	TerminalID    string          `json:"terminal_id"`
	Lines         []OrderLine     `json:"lines"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Balance is the amount still owed on the order.
func (o *Order) Balance() decimal.Decimal {
	return o.Total.Sub(o.AmountPaid)
}

// ValidAmount reports whether d fits the two-decimal money columns.
func ValidAmount(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// DerivePaymentStatus maps an amount paid against a total onto the payment
// status. Callers must have already checked 0 <= paid <= total.
func DerivePaymentStatus(total, paid decimal.Decimal) PaymentStatus {
	switch {
	case paid.Equal(total):
		return PaymentStatusPaid
	case paid.IsZero():
		return PaymentStatusPending
	default:
		return PaymentStatusPartial
	}
}

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPreparing: {OrderStatusCompleted: true, OrderStatusCancelled: true},
	OrderStatusCompleted: {OrderStatusCancelled: true},
	OrderStatusCancelled: {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

var paymentRank = map[PaymentStatus]int{
	PaymentStatusPending: 0,
	PaymentStatusPartial: 1,
	PaymentStatusPaid:    2,
}

// PaymentAdvances reports whether moving from one payment status to another
// keeps the pending -> partial -> paid progression monotonic.
func PaymentAdvances(from, to PaymentStatus) bool {
	return paymentRank[to] >= paymentRank[from]
}
