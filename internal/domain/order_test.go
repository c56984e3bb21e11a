package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePaymentStatus(t *testing.T) {
	total := decimal.NewFromInt(50)

	tests := []struct {
		name string
		paid decimal.Decimal
		want PaymentStatus
	}{
		{"nothing paid", decimal.Zero, PaymentStatusPending},
		{"part paid", decimal.NewFromInt(20), PaymentStatusPartial},
		{"fully paid", decimal.NewFromInt(50), PaymentStatusPaid},
		{"fully paid with different scale", decimal.RequireFromString("50.00"), PaymentStatusPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePaymentStatus(total, tt.paid))
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(OrderStatusPreparing, OrderStatusCompleted))
	assert.True(t, CanTransition(OrderStatusPreparing, OrderStatusCancelled))
	assert.True(t, CanTransition(OrderStatusCompleted, OrderStatusCancelled))

	assert.False(t, CanTransition(OrderStatusCompleted, OrderStatusPreparing))
	assert.False(t, CanTransition(OrderStatusCancelled, OrderStatusCompleted))
	assert.False(t, CanTransition(OrderStatusCancelled, OrderStatusPreparing))
	assert.False(t, CanTransition(OrderStatusCancelled, OrderStatusCancelled))
}

func TestPaymentAdvances(t *testing.T) {
	assert.True(t, PaymentAdvances(PaymentStatusPending, PaymentStatusPartial))
	assert.True(t, PaymentAdvances(PaymentStatusPartial, PaymentStatusPaid))
	assert.True(t, PaymentAdvances(PaymentStatusPartial, PaymentStatusPartial))
	assert.False(t, PaymentAdvances(PaymentStatusPaid, PaymentStatusPartial))
	assert.False(t, PaymentAdvances(PaymentStatusPartial, PaymentStatusPending))
}

func TestValidAmount(t *testing.T) {
	for _, s := range []string{"0", "20", "20.1", "20.01", "-3.50", "20.010"} {
		assert.True(t, ValidAmount(decimal.RequireFromString(s)), s)
	}
	for _, s := range []string{"20.005", "0.001", "-1.999"} {
		assert.False(t, ValidAmount(decimal.RequireFromString(s)), s)
	}
}

func TestOrderBalance(t *testing.T) {
	o := &Order{Total: decimal.NewFromInt(50), AmountPaid: decimal.NewFromInt(20)}
	assert.True(t, o.Balance().Equal(decimal.NewFromInt(30)))
}

func TestNewCancellationRecord_SnapshotsLines(t *testing.T) {
	o := &Order{
		ID:          "order-1",
		OrderNumber: 42,
		Total:       decimal.NewFromInt(20),
		Lines: []OrderLine{
			{ProductID: "A", Quantity: 2, UnitPrice: decimal.NewFromInt(10), Subtotal: decimal.NewFromInt(20)},
		},
	}

	rec := NewCancellationRecord(o, "customer left", "emp-1")
	o.Lines[0].Quantity = 99

	require.Len(t, rec.Lines, 1)
	assert.Equal(t, 2, rec.Lines[0].Quantity)
	assert.Equal(t, int64(42), rec.OrderNumber)
	assert.Equal(t, "customer left", rec.Reason)
	assert.Equal(t, "emp-1", rec.CancelledBy)
}

func TestErrors(t *testing.T) {
	t.Run("validation wraps sentinel", func(t *testing.T) {
		err := fmt.Errorf("checkout: %w", Invalid(ErrEmptyCart))
		assert.True(t, IsValidation(err))
		assert.True(t, errors.Is(err, ErrEmptyCart))
		assert.False(t, IsRetryable(err))
	})

	t.Run("step error names the step", func(t *testing.T) {
		err := Step("insert order", errors.New("connection reset"))
		assert.Equal(t, "insert order: connection reset", err.Error())
		assert.True(t, IsRetryable(err))
		assert.False(t, IsValidation(err))
	})

	t.Run("step of nil is nil", func(t *testing.T) {
		assert.NoError(t, Step("noop", nil))
	})
}

func TestStockKey(t *testing.T) {
	assert.Equal(t, "A", StockKey{ProductID: "A"}.String())
	assert.Equal(t, "A/L", StockKey{ProductID: "A", VariantID: "L"}.String())
	assert.False(t, StockKey{ProductID: "A"}.HasVariant())
	assert.True(t, StockKey{ProductID: "A", VariantID: "L"}.HasVariant())
}
