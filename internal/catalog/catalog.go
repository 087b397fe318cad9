package catalog

import (
	"context"
	"errors"

	"github.com/Christophe-THEVENET/greengoodies/domain"
)

// Catalog resolves product ids to live catalog data. Read-only from the
// cart core's perspective.
type Catalog interface {
	Find(ctx context.Context, productID int64) (*domain.Product, error)
	List(ctx context.Context) ([]*domain.Product, error)
}

var ErrProductNotFound = errors.New("product not found")
