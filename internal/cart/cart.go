// Package cart holds the terminal-local draft order. Nothing here is persisted;
// totals are derived from the lines on demand.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/domain"
)

type Line struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Note      string          `json:"note,omitempty"`
}

func (l Line) Key() domain.StockKey {
	return domain.StockKey{ProductID: l.ProductID, VariantID: l.VariantID}
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Cart struct {
	lines []Line
}

func New() *Cart {
	return &Cart{}
}

func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Line(index int) (Line, error) {
	if index < 0 || index >= len(c.lines) {
		return Line{}, domain.Invalid(domain.ErrLineIndex)
	}
	return c.lines[index], nil
}

// Reserved is the quantity already held in this cart for the exact
// product+variant pair, across all lines.
func (c *Cart) Reserved(key domain.StockKey) int {
	n := 0
	for _, l := range c.lines {
		if l.Key() == key {
			n += l.Quantity
		}
	}
	return n
}

// AddLine appends a line, merging into an existing line with the same stock
// unit and note.
func (c *Cart) AddLine(line Line) error {
	if line.Quantity < 1 {
		return domain.Invalid(domain.ErrInvalidQuantity)
	}

	for i := range c.lines {
		if c.lines[i].Key() == line.Key() && c.lines[i].Note == line.Note {
			c.lines[i].Quantity += line.Quantity
			return nil
		}
	}

	c.lines = append(c.lines, line)
	return nil
}

// UpdateQuantity applies delta to the line at index. A line that drops below
// one unit is removed.
func (c *Cart) UpdateQuantity(index, delta int) error {
	if index < 0 || index >= len(c.lines) {
		return domain.Invalid(domain.ErrLineIndex)
	}

	next := c.lines[index].Quantity + delta
	if next < 1 {
		return c.RemoveLine(index)
	}

	c.lines[index].Quantity = next
	return nil
}

func (c *Cart) RemoveLine(index int) error {
	if index < 0 || index >= len(c.lines) {
		return domain.Invalid(domain.ErrLineIndex)
	}
	c.lines = append(c.lines[:index], c.lines[index+1:]...)
	return nil
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Snapshot freezes the cart into order lines with prices captured as they
// are now.
func (c *Cart) Snapshot() []domain.OrderLine {
	out := make([]domain.OrderLine, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, domain.OrderLine{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}
	return out
}
