package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the persisted order aggregate. While IsValid is false it mirrors
// the owner's cart; once validated it carries an order number and becomes an
// immutable historical record.
type Order struct {
	ID          uuid.UUID       `json:"id"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	IsValid     bool            `json:"is_valid"`
	OrderNumber string          `json:"order_number,omitempty"`
	Lines       []OrderLine     `json:"lines"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OrderLine freezes product name, image and price at sync time, decoupled
// from later catalog changes.
type OrderLine struct {
	ID           int64           `json:"id"`
	OrderID      uuid.UUID       `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	Quantity     int32           `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// LinesFromSnapshot builds a fresh order line set 1:1 from the snapshot.
// Sync is a full replace, so the caller swaps the order's whole line set for
// the returned slice.
func LinesFromSnapshot(orderID uuid.UUID, snap *CartSnapshot) []OrderLine {
	cartLines := snap.Lines()
	lines := make([]OrderLine, 0, len(cartLines))
	for _, cl := range cartLines {
		lines = append(lines, OrderLine{
			OrderID:      orderID,
			ProductID:    cl.ProductID,
			ProductName:  cl.Name,
			ProductImage: cl.Image,
			Quantity:     cl.Quantity,
			UnitPrice:    cl.UnitPrice,
			LineTotal:    cl.LineTotal,
		})
	}
	return lines
}

// LinesTotal sums the line totals of an order line set.
func LinesTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal)
	}
	return total
}

// FormatOrderNumber renders the year-scoped order number, e.g. "2026-000042".
func FormatOrderNumber(year, sequence int) string {
	return fmt.Sprintf("%d-%06d", year, sequence)
}

// OrderNumberSequence extracts the sequence part of an order number.
func OrderNumberSequence(number string) (int, error) {
	idx := strings.LastIndex(number, "-")
	if idx < 0 || idx == len(number)-1 {
		return 0, fmt.Errorf("malformed order number %q", number)
	}
	seq, err := strconv.Atoi(number[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("malformed order number %q: %w", number, err)
	}
	return seq, nil
}
