// Package audit is the append-only history of order transitions and
// cancellations. Rows are only ever inserted, with one legacy exception in
// SyncCancellation.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/joao-fontenele/posflow/internal/domain"
)

type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) Append(ctx context.Context, rec *domain.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_records (id, order_id, order_number, action, status, total, employee_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.OrderID, rec.OrderNumber, rec.Action, rec.Status, rec.Total, rec.EmployeeID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// RecordCancellation inserts the cancellation snapshot. A second call for the
// same order keeps the first record and reports created=false.
func (r *Recorder) RecordCancellation(ctx context.Context, rec *domain.CancellationRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	lines, err := json.Marshal(rec.Lines)
	if err != nil {
		return false, fmt.Errorf("marshal cancelled lines: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO cancellation_records (id, order_id, order_number, total, lines, cancelled_by, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (order_id) DO NOTHING
	`, rec.ID, rec.OrderID, rec.OrderNumber, rec.Total, lines, rec.CancelledBy, rec.Reason, rec.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("record cancellation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// History returns the audit trail of an order, oldest first.
func (r *Recorder) History(ctx context.Context, orderID string) ([]domain.AuditRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, order_number, action, status, total, employee_id, created_at
		FROM audit_records
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	records := []domain.AuditRecord{}
	for rows.Next() {
		var rec domain.AuditRecord
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.OrderNumber, &rec.Action, &rec.Status, &rec.Total, &rec.EmployeeID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// Cancellation returns nil, nil when the order was never cancelled.
func (r *Recorder) Cancellation(ctx context.Context, orderID string) (*domain.CancellationRecord, error) {
	rec := &domain.CancellationRecord{}
	var lines []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, order_number, total, lines, cancelled_by, reason, created_at
		FROM cancellation_records
		WHERE order_id = $1
	`, orderID).Scan(&rec.ID, &rec.OrderID, &rec.OrderNumber, &rec.Total, &lines, &rec.CancelledBy, &rec.Reason, &rec.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(lines, &rec.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal cancelled lines: %w", err)
	}

	return rec, nil
}

// SyncCancellation mirrors a cancellation onto the most recent non-cancel
// audit row of the order. It reports whether a row was touched; zero matches
// is not an error.
func (r *Recorder) SyncCancellation(ctx context.Context, orderID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE audit_records SET status = $2, action = $3
		WHERE id = (
			SELECT id FROM audit_records
			WHERE order_id = $1 AND action <> $3
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
	`, orderID, domain.OrderStatusCancelled, domain.AuditCancelled)
	if err != nil {
		return false, fmt.Errorf("sync cancellation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}
