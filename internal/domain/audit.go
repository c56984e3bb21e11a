package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuditAction string

const (
	AuditCreated   AuditAction = "created"
	AuditUpdated   AuditAction = "updated"
	AuditCompleted AuditAction = "completed"
	AuditCancelled AuditAction = "cancelled"
)

// AuditRecord captures an order's state at the instant of a transition.
type AuditRecord struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	OrderNumber int64           `json:"order_number"`
	Action      AuditAction     `json:"action"`
	Status      OrderStatus     `json:"status"`
	Total       decimal.Decimal `json:"total"`
	EmployeeID  string          `json:"employee_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewAuditRecord snapshots the order as it is right now.
func NewAuditRecord(o *Order, action AuditAction, employeeID string) AuditRecord {
	return AuditRecord{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Action:      action,
		Status:      o.Status,
		Total:       o.Total,
		EmployeeID:  employeeID,
		CreatedAt:   time.Now().UTC(),
	}
}

type CancelledLine struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CancellationRecord struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	OrderNumber int64           `json:"order_number"`
	Total       decimal.Decimal `json:"total"`
	Lines       []CancelledLine `json:"lines"`
	CancelledBy string          `json:"cancelled_by"`
	Reason      string          `json:"reason"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewCancellationRecord denormalises the order lines so the record stays
// meaningful for shrink reporting even if the live order is corrected.
func NewCancellationRecord(o *Order, reason, cancelledBy string) CancellationRecord {
	lines := make([]CancelledLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, CancelledLine{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal,
		})
	}
	return CancellationRecord{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Total:       o.Total,
		Lines:       lines,
		CancelledBy: cancelledBy,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}
}
