package inventory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/joao-fontenele/posflow/internal/domain"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStockUnitNotFound = errors.New("stock unit not found")
)

const defaultDecrementTimeout = 5 * time.Second

// Ledger owns the product and variant stock counters. Decrement is the only
// authoritative mutation and is pushed down as a single conditional UPDATE so
// that concurrent terminals serialize on the row, never on a client read.
type Ledger struct {
	db      *sql.DB
	timeout time.Duration
}

func NewLedger(db *sql.DB, timeout time.Duration) *Ledger {
	if timeout <= 0 {
		timeout = defaultDecrementTimeout
	}
	return &Ledger{db: db, timeout: timeout}
}

const decrementVariantSQL = `
	WITH unit AS (
		SELECT 1 FROM product_variants
		WHERE id = $1 AND product_id = $2
	), dec AS (
		UPDATE product_variants
		SET stock_quantity = stock_quantity - $3, updated_at = NOW()
		WHERE id = $1 AND product_id = $2 AND stock_quantity >= $3
		RETURNING stock_quantity
	)
	SELECT EXISTS (SELECT 1 FROM unit), (SELECT stock_quantity FROM dec)
`

// The bare product counter is only addressable while the product has no
// variants; once variants exist they supersede it.
const decrementProductSQL = `
	WITH unit AS (
		SELECT 1 FROM products p
		WHERE p.id = $1
		  AND NOT EXISTS (SELECT 1 FROM product_variants v WHERE v.product_id = p.id)
	), dec AS (
		UPDATE products p
		SET stock_quantity = p.stock_quantity - $2, updated_at = NOW()
		WHERE p.id = $1 AND p.stock_quantity >= $2
		  AND NOT EXISTS (SELECT 1 FROM product_variants v WHERE v.product_id = p.id)
		RETURNING p.stock_quantity
	)
	SELECT EXISTS (SELECT 1 FROM unit), (SELECT stock_quantity FROM dec)
`

// Decrement subtracts quantity from the stock unit addressed by key and
// returns the remaining quantity. It returns ErrInsufficientStock when the
// counter cannot cover quantity (including a lost race to zero) and
// ErrStockUnitNotFound when key addresses no authoritative counter.
//
// Once issued the statement is not abortable by the caller: it runs detached
// from ctx cancellation, bounded by the ledger timeout.
func (l *Ledger) Decrement(ctx context.Context, key domain.StockKey, quantity int) (int, error) {
	if quantity < 1 {
		return 0, domain.Invalid(domain.ErrInvalidQuantity)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	var row *sql.Row
	if key.HasVariant() {
		row = l.db.QueryRowContext(ctx, decrementVariantSQL, key.VariantID, key.ProductID, quantity)
	} else {
		row = l.db.QueryRowContext(ctx, decrementProductSQL, key.ProductID, quantity)
	}

	var found bool
	var remaining sql.NullInt64
	if err := row.Scan(&found, &remaining); err != nil {
		return 0, err
	}

	if !found {
		return 0, ErrStockUnitNotFound
	}
	if !remaining.Valid {
		return 0, ErrInsufficientStock
	}

	return int(remaining.Int64), nil
}

// Restock adds quantity back to a stock unit. Cancellation never calls this;
// it exists for operators reconciling inventory by hand.
func (l *Ledger) Restock(ctx context.Context, key domain.StockKey, quantity int) error {
	if quantity < 1 {
		return domain.Invalid(domain.ErrInvalidQuantity)
	}

	var result sql.Result
	var err error
	if key.HasVariant() {
		result, err = l.db.ExecContext(ctx, `
			UPDATE product_variants
			SET stock_quantity = stock_quantity + $3, updated_at = NOW()
			WHERE id = $1 AND product_id = $2
		`, key.VariantID, key.ProductID, quantity)
	} else {
		result, err = l.db.ExecContext(ctx, `
			UPDATE products p
			SET stock_quantity = p.stock_quantity + $2, updated_at = NOW()
			WHERE p.id = $1
			  AND NOT EXISTS (SELECT 1 FROM product_variants v WHERE v.product_id = p.id)
		`, key.ProductID, quantity)
	}
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrStockUnitNotFound
	}

	return nil
}

// Available is an advisory snapshot for UI feedback. It returns nil when key
// does not address an authoritative counter.
func (l *Ledger) Available(ctx context.Context, key domain.StockKey) (*domain.StockLevel, error) {
	stock := &domain.StockLevel{}

	var err error
	if key.HasVariant() {
		err = l.db.QueryRowContext(ctx, `
			SELECT product_id, id, name, stock_quantity
			FROM product_variants
			WHERE id = $1 AND product_id = $2
		`, key.VariantID, key.ProductID).Scan(&stock.ProductID, &stock.VariantID, &stock.Name, &stock.Available)
	} else {
		err = l.db.QueryRowContext(ctx, `
			SELECT p.id, p.name, p.stock_quantity
			FROM products p
			WHERE p.id = $1
			  AND NOT EXISTS (SELECT 1 FROM product_variants v WHERE v.product_id = p.id)
		`, key.ProductID).Scan(&stock.ProductID, &stock.Name, &stock.Available)
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return stock, nil
}

func (l *Ledger) List(ctx context.Context) ([]domain.StockLevel, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT p.id, '' AS variant_id, p.name, p.stock_quantity
		FROM products p
		WHERE NOT EXISTS (SELECT 1 FROM product_variants v WHERE v.product_id = p.id)
		UNION ALL
		SELECT v.product_id, v.id, p.name || ' ' || v.name, v.stock_quantity
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		ORDER BY 1, 2
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []domain.StockLevel
	for rows.Next() {
		var stock domain.StockLevel
		if err := rows.Scan(&stock.ProductID, &stock.VariantID, &stock.Name, &stock.Available); err != nil {
			return nil, err
		}
		items = append(items, stock)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
