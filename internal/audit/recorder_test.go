//go:build integration

package audit_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/posflow/internal/audit"
	"github.com/joao-fontenele/posflow/internal/domain"
	"github.com/joao-fontenele/posflow/internal/testutil"
)

func insertOrder(t *testing.T, db *sql.DB, id string) *domain.Order {
	t.Helper()

	o := &domain.Order{
		ID:            id,
		Status:        domain.OrderStatusPreparing,
		PaymentStatus: domain.PaymentStatusPending,
		Total:         decimal.RequireFromString("20.00"),
		AmountPaid:    decimal.Zero,
		PaymentMethod: domain.PaymentMethodCash,
		EmployeeID:    "emp-1",
		TerminalID:    "T1",
		Lines: []domain.OrderLine{
			{ProductID: "ITEM-001", Name: "Coffee", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00"), Subtotal: decimal.RequireFromString("20.00")},
		},
	}

	now := time.Now().UTC()
	err := db.QueryRow(`
		INSERT INTO orders (id, status, payment_status, total, amount_paid, payment_method, employee_id, terminal_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING order_number
	`, o.ID, o.Status, o.PaymentStatus, o.Total, o.AmountPaid, o.PaymentMethod, o.EmployeeID, o.TerminalID, now).Scan(&o.OrderNumber)
	require.NoError(t, err)

	return o
}

func TestRecorder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := testutil.SetupPostgres(ctx, t)
	rec := audit.NewRecorder(db)

	t.Run("history is append-only and ordered", func(t *testing.T) {
		o := insertOrder(t, db, "order-history")

		created := domain.NewAuditRecord(o, domain.AuditCreated, "emp-1")
		require.NoError(t, rec.Append(ctx, &created))

		o.Status = domain.OrderStatusCompleted
		completed := domain.NewAuditRecord(o, domain.AuditCompleted, "emp-2")
		completed.CreatedAt = created.CreatedAt.Add(time.Second)
		require.NoError(t, rec.Append(ctx, &completed))

		history, err := rec.History(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, domain.AuditCreated, history[0].Action)
		assert.Equal(t, domain.OrderStatusPreparing, history[0].Status)
		assert.Equal(t, domain.AuditCompleted, history[1].Action)
		assert.Equal(t, o.OrderNumber, history[1].OrderNumber)
	})

	t.Run("cancellation is recorded once", func(t *testing.T) {
		o := insertOrder(t, db, "order-cancel")

		first := domain.NewCancellationRecord(o, "customer left", "emp-1")
		created, err := rec.RecordCancellation(ctx, &first)
		require.NoError(t, err)
		assert.True(t, created)

		retry := domain.NewCancellationRecord(o, "second try", "emp-9")
		created, err = rec.RecordCancellation(ctx, &retry)
		require.NoError(t, err)
		assert.False(t, created)

		got, err := rec.Cancellation(ctx, o.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "customer left", got.Reason)
		assert.Equal(t, "emp-1", got.CancelledBy)
		require.Len(t, got.Lines, 1)
		assert.Equal(t, 2, got.Lines[0].Quantity)
		assert.True(t, decimal.RequireFromString("20.00").Equal(got.Total))
	})

	t.Run("missing cancellation", func(t *testing.T) {
		got, err := rec.Cancellation(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("legacy sync mirrors onto latest row", func(t *testing.T) {
		o := insertOrder(t, db, "order-sync")

		synced, err := rec.SyncCancellation(ctx, o.ID)
		require.NoError(t, err)
		assert.False(t, synced)

		created := domain.NewAuditRecord(o, domain.AuditCreated, "emp-1")
		require.NoError(t, rec.Append(ctx, &created))

		synced, err = rec.SyncCancellation(ctx, o.ID)
		require.NoError(t, err)
		assert.True(t, synced)

		history, err := rec.History(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, domain.AuditCancelled, history[0].Action)
		assert.Equal(t, domain.OrderStatusCancelled, history[0].Status)
	})
}
