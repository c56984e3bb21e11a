package orders

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/posflow/internal/domain"
	"github.com/joao-fontenele/posflow/internal/identity"
)

var manager = identity.Identity{EmployeeID: "mgr-1", Role: identity.RoleManager}

type settlementFixture struct {
	store      *fakeStore
	audit      *fakeAudit
	notifier   *fakeNotifier
	settlement *Settlement
}

func newSettlementFixture(legacySync bool) *settlementFixture {
	f := &settlementFixture{
		store:    newFakeStore(),
		audit:    newFakeAudit(),
		notifier: &fakeNotifier{},
	}
	f.settlement = NewSettlement(f.store, f.audit, f.notifier, legacySync, discardLogger())
	return f
}

func (f *settlementFixture) seed(t *testing.T, status domain.OrderStatus, total, paid string) *domain.Order {
	t.Helper()

	o := &domain.Order{
		Status:        status,
		Total:         dec(total),
		AmountPaid:    dec(paid),
		PaymentMethod: domain.PaymentMethodCash,
		EmployeeID:    "emp-1",
		TerminalID:    "POS-1",
		TableID:       "T1",
		CreatedAt:     time.Now().UTC(),
		Lines: []domain.OrderLine{
			{ProductID: "A", Quantity: 5, UnitPrice: dec("10"), Subtotal: dec("50")},
		},
	}
	o.PaymentStatus = domain.DerivePaymentStatus(o.Total, o.AmountPaid)
	require.NoError(t, f.store.Create(context.Background(), o))
	require.NoError(t, f.store.OccupyTable(context.Background(), "T1", o.ID))
	return o
}

func TestSettlePayment_CompletesPartialOrderInFull(t *testing.T) {
	f := newSettlementFixture(false)
	o := f.seed(t, domain.OrderStatusPreparing, "50", "20")
	assert.Equal(t, domain.PaymentStatusPartial, o.PaymentStatus)

	result, err := f.settlement.SettlePayment(context.Background(), o.ID, dec("40"), domain.PaymentMethodCash, manager)
	require.NoError(t, err)
	require.NoError(t, result.AuditErr)

	assert.True(t, dec("50").Equal(result.Order.AmountPaid), "amount paid is the total, not 20+30")
	assert.Equal(t, domain.PaymentStatusPaid, result.Order.PaymentStatus)
	assert.Equal(t, domain.OrderStatusCompleted, result.Order.Status)
	assert.True(t, dec("10").Equal(result.ChangeDue))

	stored, err := f.store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, stored.AmountPaid.Equal(stored.Total))
	assert.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)

	assert.Equal(t, "", f.store.table("T1"), "table released")
	assert.Equal(t, []domain.AuditAction{domain.AuditCompleted}, f.audit.actions(o.ID))
	require.Len(t, f.notifier.published(), 1)
	assert.Equal(t, o.ID, f.notifier.published()[0].OrderID)
}

func TestSettlePayment_CompletedPartialIsUpdateOnly(t *testing.T) {
	f := newSettlementFixture(false)
	o := f.seed(t, domain.OrderStatusCompleted, "50", "20")

	result, err := f.settlement.SettlePayment(context.Background(), o.ID, dec("30"), domain.PaymentMethodCard, manager)
	require.NoError(t, err)

	assert.True(t, result.ChangeDue.IsZero())
	assert.Equal(t, domain.PaymentMethodCard, result.Order.PaymentMethod)
	assert.Equal(t, []domain.AuditAction{domain.AuditUpdated}, f.audit.actions(o.ID))
	assert.Empty(t, f.notifier.published(), "status did not change")
}

func TestSettlePayment_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		status   domain.OrderStatus
		total    string
		paid     string
		tendered string
		method   domain.PaymentMethod
		wantErr  error
	}{
		{name: "cancelled", status: domain.OrderStatusCancelled, total: "50", paid: "0", tendered: "50", wantErr: domain.ErrOrderCancelled},
		{name: "already settled", status: domain.OrderStatusCompleted, total: "50", paid: "50", tendered: "1", wantErr: domain.ErrAlreadySettled},
		{name: "short tender", status: domain.OrderStatusPreparing, total: "50", paid: "20", tendered: "29.99", wantErr: domain.ErrInsufficientTender},
		{name: "zero tender", status: domain.OrderStatusPreparing, total: "50", paid: "20", tendered: "0", wantErr: domain.ErrInvalidTender},
		{name: "negative tender", status: domain.OrderStatusPreparing, total: "50", paid: "20", tendered: "-5", wantErr: domain.ErrInvalidTender},
		{name: "unknown method", status: domain.OrderStatusPreparing, total: "50", paid: "20", tendered: "30", method: "barter", wantErr: domain.ErrInvalidPaymentMethod},
		{name: "tender finer than cents", status: domain.OrderStatusPreparing, total: "50", paid: "20", tendered: "30.005", wantErr: domain.ErrAmountPrecision},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSettlementFixture(false)
			o := f.seed(t, tt.status, tt.total, tt.paid)

			_, err := f.settlement.SettlePayment(context.Background(), o.ID, dec(tt.tendered), tt.method, manager)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			stored, err := f.store.GetByID(context.Background(), o.ID)
			require.NoError(t, err)
			assert.True(t, dec(tt.paid).Equal(stored.AmountPaid))
			assert.Empty(t, f.audit.actions(o.ID))
		})
	}
}

func TestSettlePayment_UnknownOrder(t *testing.T) {
	f := newSettlementFixture(false)
	_, err := f.settlement.SettlePayment(context.Background(), "missing", dec("1"), "", manager)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestSettlePayment_StorageFailureIsRetryable(t *testing.T) {
	f := newSettlementFixture(false)
	o := f.seed(t, domain.OrderStatusPreparing, "50", "0")
	f.store.updateErr = errStorage

	_, err := f.settlement.SettlePayment(context.Background(), o.ID, dec("50"), "", manager)
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Contains(t, err.Error(), "update order")
	assert.Empty(t, f.notifier.published())
}

func TestAddPayment(t *testing.T) {
	f := newSettlementFixture(false)
	o := f.seed(t, domain.OrderStatusPreparing, "50", "0")
	ctx := context.Background()

	result, err := f.settlement.AddPayment(ctx, o.ID, dec("20"), domain.PaymentMethodCash, manager)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPartial, result.Order.PaymentStatus)
	assert.Equal(t, domain.OrderStatusPreparing, result.Order.Status)

	_, err = f.settlement.AddPayment(ctx, o.ID, dec("30.01"), domain.PaymentMethodCash, manager)
	assert.ErrorIs(t, err, domain.ErrPaymentExceedsBalance)

	_, err = f.settlement.AddPayment(ctx, o.ID, dec("0.005"), domain.PaymentMethodCash, manager)
	assert.ErrorIs(t, err, domain.ErrAmountPrecision)
	assert.True(t, domain.IsValidation(err))

	result, err = f.settlement.AddPayment(ctx, o.ID, dec("30"), domain.PaymentMethodCash, manager)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, result.Order.PaymentStatus)
	assert.True(t, result.Order.AmountPaid.Equal(result.Order.Total))
	assert.Equal(t, domain.OrderStatusPreparing, result.Order.Status, "payments never move the status")

	_, err = f.settlement.AddPayment(ctx, o.ID, dec("1"), domain.PaymentMethodCash, manager)
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)

	assert.Equal(t, []domain.AuditAction{domain.AuditUpdated, domain.AuditUpdated}, f.audit.actions(o.ID))
	assert.Empty(t, f.notifier.published())
}

func TestCancel_EmptyReasonRejected(t *testing.T) {
	f := newSettlementFixture(false)
	o := f.seed(t, domain.OrderStatusPreparing, "50", "0")

	for _, reason := range []string{"", "   "} {
		_, err := f.settlement.Cancel(context.Background(), o.ID, reason, manager)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrReasonRequired)
		assert.True(t, domain.IsValidation(err))
	}

	stored, err := f.store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPreparing, stored.Status)
	assert.Empty(t, f.audit.cancellations)
}

func TestCancel_FromAnyLiveStatus(t *testing.T) {
	for _, status := range []domain.OrderStatus{domain.OrderStatusPreparing, domain.OrderStatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			f := newSettlementFixture(true)
			o := f.seed(t, status, "50", "50")

			result, err := f.settlement.Cancel(context.Background(), o.ID, "  wrong table  ", manager)
			require.NoError(t, err)
			require.NoError(t, result.AuditErr)

			assert.Equal(t, domain.OrderStatusCancelled, result.Order.Status)
			assert.Equal(t, "wrong table", result.Cancellation.Reason)
			assert.Equal(t, "mgr-1", result.Cancellation.CancelledBy)
			require.Len(t, result.Cancellation.Lines, 1)
			assert.Equal(t, 5, result.Cancellation.Lines[0].Quantity)
			assert.True(t, dec("50").Equal(result.Cancellation.Total))

			assert.Len(t, f.audit.cancellations, 1)
			assert.Equal(t, []domain.AuditAction{domain.AuditCancelled}, f.audit.actions(o.ID))
			assert.Equal(t, []string{o.ID}, f.audit.synced)
			assert.Equal(t, "", f.store.table("T1"))

			_, err = f.settlement.Cancel(context.Background(), o.ID, "again", manager)
			assert.ErrorIs(t, err, domain.ErrOrderCancelled)
			assert.Len(t, f.audit.cancellations, 1)
		})
	}
}

func TestCancel_RetryAfterStatusWriteFailure(t *testing.T) {
	f := newSettlementFixture(false)
	o := f.seed(t, domain.OrderStatusPreparing, "50", "0")
	ctx := context.Background()

	f.store.updateErr = errStorage
	_, err := f.settlement.Cancel(ctx, o.ID, "spilled", manager)
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Len(t, f.audit.cancellations, 1)

	stored, err := f.audit.Cancellation(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	f.store.updateErr = nil
	result, err := f.settlement.Cancel(ctx, o.ID, "different reason", manager)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, result.Order.Status)
	assert.Len(t, f.audit.cancellations, 1, "the retry reuses the first record")
	require.NotNil(t, result.Cancellation)
	assert.Equal(t, stored.ID, result.Cancellation.ID)
	assert.Equal(t, "spilled", result.Cancellation.Reason)
	assert.Empty(t, f.audit.synced, "legacy sync is off")
}

func TestCancel_CancellationFailureLeavesStatus(t *testing.T) {
	f := newSettlementFixture(false)
	o := f.seed(t, domain.OrderStatusPreparing, "50", "0")
	f.audit.cancelErr = errStorage

	_, err := f.settlement.Cancel(context.Background(), o.ID, "spilled", manager)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record cancellation")

	stored, err := f.store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPreparing, stored.Status)
}

func TestSettlement_PaymentInvariantHolds(t *testing.T) {
	f := newSettlementFixture(false)
	o := f.seed(t, domain.OrderStatusPreparing, "100", "0")
	ctx := context.Background()

	for _, amount := range []string{"10", "25.50", "200", "-1", "64.50", "1"} {
		_, _ = f.settlement.AddPayment(ctx, o.ID, decimal.RequireFromString(amount), "", manager)

		stored, err := f.store.GetByID(ctx, o.ID)
		require.NoError(t, err)
		assert.True(t, stored.AmountPaid.LessThanOrEqual(stored.Total))
		assert.Equal(t, stored.AmountPaid.Equal(stored.Total), stored.PaymentStatus == domain.PaymentStatusPaid)
	}
}

func TestApplyPayment_NeverRegresses(t *testing.T) {
	o := &domain.Order{
		Total:         dec("50"),
		AmountPaid:    dec("50"),
		PaymentStatus: domain.PaymentStatusPaid,
	}

	err := applyPayment(o, dec("20"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.True(t, dec("50").Equal(o.AmountPaid))
	assert.Equal(t, domain.PaymentStatusPaid, o.PaymentStatus)

	o.AmountPaid = dec("10")
	o.PaymentStatus = domain.PaymentStatusPartial
	require.NoError(t, applyPayment(o, dec("50")))
	assert.Equal(t, domain.PaymentStatusPaid, o.PaymentStatus)
	assert.True(t, dec("50").Equal(o.AmountPaid))
}
