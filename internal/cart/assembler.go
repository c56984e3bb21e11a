package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/joao-fontenele/posflow/internal/catalog"
	"github.com/joao-fontenele/posflow/internal/domain"
)

type Catalog interface {
	Lookup(ctx context.Context, productID, variantID string) (*catalog.Item, error)
}

type Availability interface {
	Available(ctx context.Context, key domain.StockKey) (*domain.StockLevel, error)
}

// Assembler performs the catalog lookup and the advisory stock pre-check that
// must precede any cart growth. The pre-check only gates the UI action; the
// ledger decides at commit time.
type Assembler struct {
	catalog Catalog
	stock   Availability
}

func NewAssembler(catalog Catalog, stock Availability) *Assembler {
	return &Assembler{catalog: catalog, stock: stock}
}

func (a *Assembler) Add(ctx context.Context, c *Cart, productID, variantID string, quantity int, note string) (Line, error) {
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return Line{}, domain.Invalid(domain.ErrInvalidQuantity)
	}

	item, err := a.catalog.Lookup(ctx, productID, variantID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return Line{}, domain.Invalid(err)
		}
		return Line{}, fmt.Errorf("catalog lookup: %w", err)
	}
	if item.HasVariants && variantID == "" {
		return Line{}, domain.Invalid(domain.ErrVariantRequired)
	}

	line := Line{
		ProductID: item.ProductID,
		VariantID: item.VariantID,
		Name:      item.Name,
		Quantity:  quantity,
		UnitPrice: item.Price,
		Note:      note,
	}

	if err := a.checkAvailable(ctx, c, line.Key(), quantity); err != nil {
		return Line{}, err
	}

	if err := c.AddLine(line); err != nil {
		return Line{}, err
	}
	return line, nil
}

// Adjust changes the quantity of an existing line. Only growth is pre-checked.
func (a *Assembler) Adjust(ctx context.Context, c *Cart, index, delta int) error {
	line, err := c.Line(index)
	if err != nil {
		return err
	}

	if delta > 0 {
		if err := a.checkAvailable(ctx, c, line.Key(), delta); err != nil {
			return err
		}
	}

	return c.UpdateQuantity(index, delta)
}

func (a *Assembler) checkAvailable(ctx context.Context, c *Cart, key domain.StockKey, want int) error {
	stock, err := a.stock.Available(ctx, key)
	if err != nil {
		return fmt.Errorf("stock availability: %w", err)
	}
	if stock == nil {
		return domain.ErrNotAvailable
	}

	if stock.Available-c.Reserved(key) < want {
		return domain.ErrNotAvailable
	}
	return nil
}
