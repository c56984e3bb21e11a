// Package catalog is the read-only view of the catalog collaborator used while
// a cart is being built. Prices read here are snapshotted into order lines and
// never consulted again after commit.
package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/domain"
)

type Item struct {
	ProductID   string
	VariantID   string
	Name        string
	Price       decimal.Decimal
	HasVariants bool
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Lookup returns the sellable item for a product, or for one of its variants
// when variantID is set.
func (r *Repository) Lookup(ctx context.Context, productID, variantID string) (*Item, error) {
	item := &Item{ProductID: productID}

	var err error
	if variantID != "" {
		item.VariantID = variantID
		item.HasVariants = true
		err = r.db.QueryRowContext(ctx, `
			SELECT p.name || ' ' || v.name, v.price
			FROM product_variants v
			JOIN products p ON p.id = v.product_id
			WHERE v.id = $1 AND v.product_id = $2
		`, variantID, productID).Scan(&item.Name, &item.Price)
	} else {
		err = r.db.QueryRowContext(ctx, `
			SELECT p.name, p.price,
				EXISTS (SELECT 1 FROM product_variants v WHERE v.product_id = p.id)
			FROM products p
			WHERE p.id = $1
		`, productID).Scan(&item.Name, &item.Price, &item.HasVariants)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}

	return item, nil
}
