package orders

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/posflow/internal/domain"
)

var ErrTableNotFound = errors.New("dining table not found")

const defaultListLimit = 100

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create writes the header and every line in one transaction and assigns the
// order id, line ids and order number.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (id, status, payment_status, total, amount_paid, payment_method,
			employee_id, customer_id, table_id, terminal_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING order_number
	`, order.ID, order.Status, order.PaymentStatus, order.Total, order.AmountPaid, order.PaymentMethod,
		order.EmployeeID, nullString(order.CustomerID), nullString(order.TableID), order.TerminalID, order.CreatedAt,
	).Scan(&order.OrderNumber)
	if err != nil {
		return err
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		line.ID = uuid.New().String()
		line.OrderID = order.ID

		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (id, order_id, product_id, variant_id, name, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, line.ID, line.OrderID, line.ProductID, nullString(line.VariantID), line.Name, line.Quantity, line.UnitPrice, line.Subtotal)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	order.UpdatedAt = order.CreatedAt
	return nil
}

const selectOrder = `
	SELECT id, order_number, status, payment_status, total, amount_paid, payment_method,
		employee_id, customer_id, table_id, terminal_id, created_at, updated_at
	FROM orders
`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*domain.Order, error) {
	var o domain.Order
	var customerID, tableID sql.NullString
	err := s.Scan(&o.ID, &o.OrderNumber, &o.Status, &o.PaymentStatus, &o.Total, &o.AmountPaid, &o.PaymentMethod,
		&o.EmployeeID, &customerID, &tableID, &o.TerminalID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.CustomerID = customerID.String
	o.TableID = tableID.String
	o.Lines = []domain.OrderLine{}
	return &o, nil
}

// GetByID returns nil, nil when the order does not exist.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadLines(ctx, map[string]*domain.Order{order.ID: order}, []string{order.ID}); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, selectOrder+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	if err := r.loadLines(ctx, orderMap, orderIDs); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func (r *OrderRepository) loadLines(ctx context.Context, orderMap map[string]*domain.Order, orderIDs []string) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, variant_id, name, quantity, unit_price, subtotal
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.OrderLine
		var variantID sql.NullString
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &variantID, &line.Name, &line.Quantity, &line.UnitPrice, &line.Subtotal); err != nil {
			return err
		}
		line.VariantID = variantID.String
		order := orderMap[line.OrderID]
		order.Lines = append(order.Lines, line)
	}

	return rows.Err()
}

// UpdateState persists status and payment fields. Cancelled orders are never
// touched again; updated is false when the row was already cancelled or
// missing.
func (r *OrderRepository) UpdateState(ctx context.Context, order *domain.Order) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, amount_paid = $4, payment_method = $5, updated_at = $6
		WHERE id = $1 AND status <> 'cancelled'
	`, order.ID, order.Status, order.PaymentStatus, order.AmountPaid, order.PaymentMethod, order.UpdatedAt)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

func (r *OrderRepository) OccupyTable(ctx context.Context, tableID, orderID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE dining_tables SET order_id = $2 WHERE id = $1
	`, tableID, orderID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrTableNotFound
	}

	return nil
}

// ReleaseTable frees the table only if it is still held by orderID.
func (r *OrderRepository) ReleaseTable(ctx context.Context, tableID, orderID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dining_tables SET order_id = NULL WHERE id = $1 AND order_id = $2
	`, tableID, orderID)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
