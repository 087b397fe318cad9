package service

import (
	"context"
	"fmt"

	"github.com/Christophe-THEVENET/greengoodies/domain"
)

// SequenceSource yields the highest assigned order number of a year.
type SequenceSource interface {
	HighestOrderNumber(ctx context.Context, year int) (string, error)
}

// OrderNumberSequencer derives the next year-scoped order number from the
// highest existing one. The read-then-write race this opens is closed by the
// unique constraint on the order number column plus reselect-and-retry at
// finalize time.
type OrderNumberSequencer struct {
	source SequenceSource
}

func NewOrderNumberSequencer(source SequenceSource) *OrderNumberSequencer {
	return &OrderNumberSequencer{source: source}
}

// Next returns the next candidate number for the year, starting at 1 when
// the year has no valid orders yet.
func (s *OrderNumberSequencer) Next(ctx context.Context, year int) (string, error) {
	last, err := s.source.HighestOrderNumber(ctx, year)
	if err != nil {
		return "", fmt.Errorf("highest order number: %w", err)
	}

	sequence := 1
	if last != "" {
		n, err := domain.OrderNumberSequence(last)
		if err != nil {
			return "", err
		}
		sequence = n + 1
	}

	return domain.FormatOrderNumber(year, sequence), nil
}
