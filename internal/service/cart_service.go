package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Christophe-THEVENET/greengoodies/domain"
	"github.com/Christophe-THEVENET/greengoodies/internal/catalog"
	"github.com/Christophe-THEVENET/greengoodies/internal/repository"
	"github.com/Christophe-THEVENET/greengoodies/internal/session"
)

// CartService owns the long-lived collaborators of the reconciliation
// engine. Request-scoped state lives on the Cart values it hands out.
type CartService struct {
	sessions  session.Store
	catalog   catalog.Catalog
	orders    repository.OrderRepository
	sequencer *OrderNumberSequencer
	log       *zap.Logger
}

func NewCartService(sessions session.Store, cat catalog.Catalog, orders repository.OrderRepository, log *zap.Logger) *CartService {
	return &CartService{
		sessions:  sessions,
		catalog:   cat,
		orders:    orders,
		sequencer: NewOrderNumberSequencer(orders),
		log:       log,
	}
}

// LastOrders returns the user's most recent validated orders, newest first.
func (s *CartService) LastOrders(ctx context.Context, userID int64) ([]*domain.Order, error) {
	return s.orders.LastValidOrdersByUser(ctx, userID, 5)
}

// Products lists the live catalog for display.
func (s *CartService) Products(ctx context.Context) ([]*domain.Product, error) {
	return s.catalog.List(ctx)
}

type loadState int

const (
	stateUnloaded loadState = iota
	stateLoaded
)

// Cart is the request-scoped reconciliation engine: it loads the snapshot
// once per request, applies mutations, and keeps the session and the pending
// order in step with each other.
type Cart struct {
	svc       *CartService
	sessionID string
	userID    int64 // 0 when anonymous
	state     loadState
	snapshot  *domain.CartSnapshot
}

// Cart builds the engine for one request. userID 0 means anonymous.
func (s *CartService) Cart(sessionID string, userID int64) *Cart {
	return &Cart{
		svc:       s,
		sessionID: sessionID,
		userID:    userID,
	}
}

// ValidatedOrder is the reference returned by a successful validation.
type ValidatedOrder struct {
	ID     uuid.UUID `json:"id"`
	Number string    `json:"order_number"`
}

// Snapshot returns the current cart state, loading it lazily on first use.
func (c *Cart) Snapshot(ctx context.Context) (*domain.CartSnapshot, error) {
	return c.load(ctx)
}

// AddItem resolves the product, adds quantity to the cart (additively for an
// existing line), syncs the pending order for authenticated users and writes
// the snapshot back to the session.
func (c *Cart) AddItem(ctx context.Context, productID int64, quantity int32) (*domain.CartSnapshot, error) {
	if quantity <= 0 {
		quantity = 1
	}

	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	product, err := c.svc.catalog.Find(ctx, productID)
	if err != nil {
		return nil, err
	}

	snap.AddLine(product, quantity)

	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	if err := c.saveSession(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

// UpdateQuantity sets the line's quantity and returns the quantity actually
// applied. A quantity of zero or less behaves as RemoveItem.
func (c *Cart) UpdateQuantity(ctx context.Context, productID int64, quantity int32) (int32, error) {
	if quantity <= 0 {
		return 0, c.RemoveItem(ctx, productID)
	}

	snap, err := c.load(ctx)
	if err != nil {
		return 0, err
	}

	applied := snap.SetQuantity(productID, quantity)

	if err := c.sync(ctx); err != nil {
		return 0, err
	}
	if err := c.saveSession(ctx); err != nil {
		return 0, err
	}
	return applied, nil
}

// RemoveItem deletes the line if present. When the last line goes, the
// linked pending order is deleted outright: an empty order is not a valid
// persisted state.
func (c *Cart) RemoveItem(ctx context.Context, productID int64) error {
	snap, err := c.load(ctx)
	if err != nil {
		return err
	}

	snap.Remove(productID)

	if snap.IsEmpty() {
		if err := c.deletePendingOrder(ctx); err != nil {
			return err
		}
		snap.OrderID = nil
	} else if err := c.sync(ctx); err != nil {
		return err
	}

	return c.saveSession(ctx)
}

// Clear empties the snapshot and deletes the pending order if one exists.
func (c *Cart) Clear(ctx context.Context) error {
	if _, err := c.load(ctx); err != nil {
		return err
	}
	if err := c.deletePendingOrder(ctx); err != nil {
		return err
	}
	c.snapshot.Clear()
	return c.saveSession(ctx)
}

// Validate finalizes the pending order: one last sync from the live
// snapshot, total recomputed from the synchronized lines, order number
// assigned under the uniqueness constraint, then the cart is cleared.
func (c *Cart) Validate(ctx context.Context) (*ValidatedOrder, error) {
	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if snap.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if c.userID == 0 {
		return nil, ErrNotAuthenticated
	}

	order, err := c.locateOrCreatePendingOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPendingOrder, err)
	}

	// Re-synchronize once more to cover any drift, and take the total from
	// the synchronized lines rather than the live snapshot.
	lines := domain.LinesFromSnapshot(order.ID, snap)
	total := domain.LinesTotal(lines)
	if err := c.svc.orders.ReplaceLines(ctx, order.ID, lines, total); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	number, err := c.assignOrderNumber(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	c.notifyValidated(ctx, order.ID, number, total)

	if err := c.Clear(ctx); err != nil {
		return nil, err
	}

	return &ValidatedOrder{ID: order.ID, Number: number}, nil
}

// assignOrderNumber reselects the next candidate and retries when a
// concurrent validation wins the number first.
func (c *Cart) assignOrderNumber(ctx context.Context, orderID uuid.UUID) (string, error) {
	year := time.Now().Year()

	for attempt := 0; attempt < maxSyncRetries; attempt++ {
		number, err := c.svc.sequencer.Next(ctx, year)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSyncFailed, err)
		}

		err = c.svc.orders.Finalize(ctx, orderID, number)
		if err == nil {
			return number, nil
		}
		if errors.Is(err, repository.ErrOrderNumberTaken) {
			c.svc.log.Info("order number taken, reselecting",
				zap.String("order_number", number),
				zap.Int("attempt", attempt+1))
			continue
		}
		return "", fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	return "", fmt.Errorf("%w: order number contention persisted", ErrSyncFailed)
}

// load builds the snapshot once per request: first from the linked pending
// order when the session references one, otherwise from the session's
// quantity map. Products that left the catalog are skipped.
func (c *Cart) load(ctx context.Context) (*domain.CartSnapshot, error) {
	if c.state == stateLoaded {
		return c.snapshot, nil
	}

	snap := domain.NewCartSnapshot()

	orderID, err := session.LoadOrderID(ctx, c.svc.sessions, c.sessionID)
	if err != nil {
		return nil, err
	}
	if orderID != nil {
		loaded, err := c.loadFromOrder(ctx, snap, *orderID)
		if err != nil {
			return nil, err
		}
		if loaded {
			c.snapshot = snap
			c.state = stateLoaded
			return snap, nil
		}
	}

	if err := c.loadFromSessionData(ctx, snap); err != nil {
		return nil, err
	}

	c.snapshot = snap
	c.state = stateLoaded
	return snap, nil
}

func (c *Cart) loadFromOrder(ctx context.Context, snap *domain.CartSnapshot, orderID uuid.UUID) (bool, error) {
	order, err := c.svc.orders.FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		// Stale reference, drop it and fall back to the session data.
		return false, session.SaveOrderID(ctx, c.svc.sessions, c.sessionID, nil)
	}
	if err != nil {
		return false, err
	}
	if order.IsValid {
		return false, session.SaveOrderID(ctx, c.svc.sessions, c.sessionID, nil)
	}

	for _, line := range order.Lines {
		product, err := c.svc.catalog.Find(ctx, line.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		snap.AddLine(product, line.Quantity)
	}

	id := order.ID
	snap.OrderID = &id
	return true, nil
}

func (c *Cart) loadFromSessionData(ctx context.Context, snap *domain.CartSnapshot) error {
	data, err := session.LoadCartData(ctx, c.svc.sessions, c.sessionID)
	if err != nil {
		return err
	}

	for productID, quantity := range data {
		product, err := c.svc.catalog.Find(ctx, productID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		snap.AddLine(product, quantity)
	}
	return nil
}

// sync mirrors the snapshot into the user's pending order with full-replace
// semantics. Anonymous users and empty snapshots persist nothing.
func (c *Cart) sync(ctx context.Context) error {
	if c.userID == 0 || c.snapshot.IsEmpty() {
		return nil
	}

	order, err := c.locateOrCreatePendingOrder(ctx)
	if err != nil {
		return err
	}

	lines := domain.LinesFromSnapshot(order.ID, c.snapshot)
	total := domain.LinesTotal(lines)
	if err := c.svc.orders.ReplaceLines(ctx, order.ID, lines, total); err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	id := order.ID
	c.snapshot.OrderID = &id
	return nil
}

// locateOrCreatePendingOrder finds the user's single pending order or
// creates it, re-reading when a concurrent session wins the create.
func (c *Cart) locateOrCreatePendingOrder(ctx context.Context) (*domain.Order, error) {
	for attempt := 0; attempt < maxSyncRetries; attempt++ {
		order, err := c.svc.orders.FindUnvalidatedByUser(ctx, c.userID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
		}

		order, err = c.svc.orders.Create(ctx, c.userID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, repository.ErrPendingOrderExists) {
			return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
		}
		// Another session created the order concurrently, re-read it.
	}
	return nil, fmt.Errorf("%w: pending order contention persisted", ErrSyncFailed)
}

func (c *Cart) deletePendingOrder(ctx context.Context) error {
	if c.userID == 0 {
		return nil
	}

	order, err := c.svc.orders.FindUnvalidatedByUser(ctx, c.userID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	if err := c.svc.orders.Delete(ctx, order.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	return nil
}

func (c *Cart) saveSession(ctx context.Context) error {
	if err := session.SaveCartData(ctx, c.svc.sessions, c.sessionID, c.snapshot.Quantities()); err != nil {
		return err
	}
	return session.SaveOrderID(ctx, c.svc.sessions, c.sessionID, c.snapshot.OrderID)
}

func (c *Cart) notifyValidated(ctx context.Context, orderID uuid.UUID, number string, total decimal.Decimal) {
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":     orderID,
		"order_number": number,
		"user_id":      c.userID,
		"total_amount": total,
	})
	if err != nil {
		c.svc.log.Error("marshal validation notification", zap.Error(err))
		return
	}

	// Best effort: a lost toast must not fail the checkout.
	err = c.svc.orders.EnqueueNotification(ctx, &repository.Notification{
		EventType:   "order_validated",
		AggregateID: orderID.String(),
		Payload:     payload,
	})
	if err != nil {
		c.svc.log.Error("enqueue validation notification", zap.Error(err))
	}
}
