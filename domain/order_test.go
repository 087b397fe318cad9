package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatOrderNumber(t *testing.T) {
	assert.Equal(t, "2026-000001", FormatOrderNumber(2026, 1))
	assert.Equal(t, "2026-000123", FormatOrderNumber(2026, 123))
	assert.Equal(t, "2026-123456", FormatOrderNumber(2026, 123456))
}

func TestOrderNumberSequence(t *testing.T) {
	seq, err := OrderNumberSequence("2026-000123")
	require.NoError(t, err)
	assert.Equal(t, 123, seq)
}

func TestOrderNumberSequence_Malformed(t *testing.T) {
	_, err := OrderNumberSequence("garbage")
	assert.Error(t, err)

	_, err = OrderNumberSequence("2026-")
	assert.Error(t, err)

	_, err = OrderNumberSequence("2026-abc")
	assert.Error(t, err)
}

func TestLinesFromSnapshot_FreezesCartState(t *testing.T) {
	snap := NewCartSnapshot()
	snap.AddLine(&Product{
		ID:       42,
		Name:     "Shot Tropical",
		ImageURL: "shot_tropical.png",
		Price:    decimal.NewFromFloat(4.50),
	}, 2)

	orderID := uuid.New()
	lines := LinesFromSnapshot(orderID, snap)

	require.Len(t, lines, 1)
	assert.Equal(t, orderID, lines[0].OrderID)
	assert.Equal(t, int64(42), lines[0].ProductID)
	assert.Equal(t, "Shot Tropical", lines[0].ProductName)
	assert.Equal(t, "shot_tropical.png", lines[0].ProductImage)
	assert.Equal(t, int32(2), lines[0].Quantity)
	assert.True(t, lines[0].UnitPrice.Equal(decimal.NewFromFloat(4.50)))
	assert.True(t, lines[0].LineTotal.Equal(decimal.NewFromFloat(9.00)))
}

func TestLinesTotal(t *testing.T) {
	lines := []OrderLine{
		{LineTotal: decimal.NewFromFloat(9.00)},
		{LineTotal: decimal.NewFromFloat(16.90)},
	}
	assert.True(t, LinesTotal(lines).Equal(decimal.NewFromFloat(25.90)))
	assert.True(t, LinesTotal(nil).IsZero())
}
