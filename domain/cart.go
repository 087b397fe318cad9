package domain

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLine is one product line of a cart snapshot. The unit price is frozen
// at add time, so a later catalog price change does not move an existing line.
type CartLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// CartSnapshot is the live, session-scoped cart state for one request.
// TotalAmount is recomputed together with every mutation, so it always equals
// the sum of the current line totals.
type CartSnapshot struct {
	lines       map[int64]*CartLine
	TotalAmount decimal.Decimal

	// OrderID links the snapshot to the user's pending order, when one exists.
	OrderID *uuid.UUID
}

func NewCartSnapshot() *CartSnapshot {
	return &CartSnapshot{
		lines:       make(map[int64]*CartLine),
		TotalAmount: decimal.Zero,
	}
}

// AddLine adds quantity of the product to the snapshot. An existing line is
// incremented, a new line freezes the product's current price.
func (c *CartSnapshot) AddLine(p *Product, quantity int32) {
	if line, ok := c.lines[p.ID]; ok {
		line.Quantity += quantity
		line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt32(line.Quantity))
	} else {
		c.lines[p.ID] = &CartLine{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.ImageURL,
			Quantity:  quantity,
			UnitPrice: p.Price,
			LineTotal: p.Price.Mul(decimal.NewFromInt32(quantity)),
		}
	}
	c.recalcTotal()
}

// SetQuantity replaces the quantity of an existing line and returns the
// quantity actually applied. A quantity of zero or less removes the line.
// Setting a quantity on an absent line is a no-op and returns zero.
func (c *CartSnapshot) SetQuantity(productID int64, quantity int32) int32 {
	if quantity <= 0 {
		c.Remove(productID)
		return 0
	}

	line, ok := c.lines[productID]
	if !ok {
		return 0
	}

	line.Quantity = quantity
	line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt32(quantity))
	c.recalcTotal()
	return quantity
}

// Remove deletes the line for the product. Absent lines are a no-op.
func (c *CartSnapshot) Remove(productID int64) {
	delete(c.lines, productID)
	c.recalcTotal()
}

// Clear empties the snapshot and drops the pending order link.
func (c *CartSnapshot) Clear() {
	c.lines = make(map[int64]*CartLine)
	c.TotalAmount = decimal.Zero
	c.OrderID = nil
}

func (c *CartSnapshot) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *CartSnapshot) Line(productID int64) (*CartLine, bool) {
	line, ok := c.lines[productID]
	return line, ok
}

// Lines returns the cart lines ordered by product id for stable display.
func (c *CartSnapshot) Lines() []*CartLine {
	out := make([]*CartLine, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// ItemCount is the sum of all line quantities.
func (c *CartSnapshot) ItemCount() int32 {
	var n int32
	for _, line := range c.lines {
		n += line.Quantity
	}
	return n
}

// Quantities returns the compact {productID: quantity} form kept in the session.
func (c *CartSnapshot) Quantities() map[int64]int32 {
	out := make(map[int64]int32, len(c.lines))
	for id, line := range c.lines {
		out[id] = line.Quantity
	}
	return out
}

func (c *CartSnapshot) recalcTotal() {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.LineTotal)
	}
	c.TotalAmount = total
}
