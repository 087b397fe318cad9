package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Christophe-THEVENET/greengoodies/domain"
	"github.com/Christophe-THEVENET/greengoodies/internal/catalog"
	"github.com/Christophe-THEVENET/greengoodies/internal/repository"
	"github.com/Christophe-THEVENET/greengoodies/internal/session"
)

type mockSessionStore struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{data: make(map[string]map[string][]byte)}
}

func (m *mockSessionStore) Get(_ context.Context, sessionID, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[sessionID][key]
	if !ok {
		return nil, session.ErrKeyNotFound
	}
	return value, nil
}

func (m *mockSessionStore) Set(_ context.Context, sessionID, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[sessionID] == nil {
		m.data[sessionID] = make(map[string][]byte)
	}
	m.data[sessionID][key] = value
	return nil
}

func (m *mockSessionStore) Remove(_ context.Context, sessionID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[sessionID], key)
	return nil
}

type mockCatalog struct {
	mu       sync.Mutex
	products map[int64]*domain.Product
}

func newMockCatalog(products ...*domain.Product) *mockCatalog {
	m := &mockCatalog{products: make(map[int64]*domain.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockCatalog) Find(_ context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockCatalog) List(_ context.Context) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Product, 0, len(m.products))
	for _, p := range m.products {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockCatalog) remove(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
}

// mockOrderRepo mirrors the persistence invariants: one pending order per
// user and unique order numbers, both reported through the sentinel errors.
type mockOrderRepo struct {
	mu            sync.Mutex
	orders        map[uuid.UUID]*domain.Order
	usedNumbers   map[string]bool
	notifications []*repository.Notification

	findErr     error
	replaceErr  error
	finalizeErr error

	// takeNumberOnce makes the next Finalize lose its candidate number, as if
	// a concurrent validation had claimed it first.
	takeNumberOnce bool
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{
		orders:      make(map[uuid.UUID]*domain.Order),
		usedNumbers: make(map[string]bool),
	}
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return &cp
}

func (m *mockOrderRepo) FindUnvalidatedByUser(_ context.Context, userID int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, o := range m.orders {
		if o.UserID == userID && !o.IsValid {
			return copyOrder(o), nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (m *mockOrderRepo) Create(_ context.Context, userID int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.UserID == userID && !o.IsValid {
			return nil, repository.ErrPendingOrderExists
		}
	}
	o := &domain.Order{
		ID:          uuid.New(),
		UserID:      userID,
		TotalAmount: decimal.Zero,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	m.orders[o.ID] = o
	return copyOrder(o), nil
}

func (m *mockOrderRepo) ReplaceLines(_ context.Context, orderID uuid.UUID, lines []domain.OrderLine, total decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	o, ok := m.orders[orderID]
	if !ok || o.IsValid {
		return repository.ErrOrderNotFound
	}
	o.Lines = append([]domain.OrderLine(nil), lines...)
	o.TotalAmount = total
	o.UpdatedAt = time.Now()
	return nil
}

func (m *mockOrderRepo) Delete(_ context.Context, orderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok && !o.IsValid {
		delete(m.orders, orderID)
	}
	return nil
}

func (m *mockOrderRepo) Finalize(_ context.Context, orderID uuid.UUID, orderNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalizeErr != nil {
		return m.finalizeErr
	}
	if m.takeNumberOnce {
		m.takeNumberOnce = false
		m.usedNumbers[orderNumber] = true
		return repository.ErrOrderNumberTaken
	}
	if m.usedNumbers[orderNumber] {
		return repository.ErrOrderNumberTaken
	}
	o, ok := m.orders[orderID]
	if !ok || o.IsValid {
		return repository.ErrOrderNotFound
	}
	o.IsValid = true
	o.OrderNumber = orderNumber
	o.UpdatedAt = time.Now()
	m.usedNumbers[orderNumber] = true
	return nil
}

func (m *mockOrderRepo) HighestOrderNumber(_ context.Context, year int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := fmt.Sprintf("%d-", year)
	var highest string
	for number := range m.usedNumbers {
		if strings.HasPrefix(number, prefix) && number > highest {
			highest = number
		}
	}
	return highest, nil
}

func (m *mockOrderRepo) LastValidOrdersByUser(_ context.Context, userID int64, limit int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.UserID == userID && o.IsValid {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockOrderRepo) EnqueueNotification(_ context.Context, n *repository.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	cp.ID = int64(len(m.notifications) + 1)
	m.notifications = append(m.notifications, &cp)
	return nil
}

func (m *mockOrderRepo) UnpublishedNotifications(_ context.Context, limit int) ([]*repository.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*repository.Notification, 0, limit)
	for _, n := range m.notifications {
		if len(out) == limit {
			break
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *mockOrderRepo) MarkNotificationPublished(_ context.Context, _ int64) error {
	return nil
}

func (m *mockOrderRepo) Close() error { return nil }

func (m *mockOrderRepo) RunMigrations(_ *repository.Credentials) error { return nil }

func (m *mockOrderRepo) pendingOrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if !o.IsValid {
			n++
		}
	}
	return n
}

func (m *mockOrderRepo) notificationEventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.notifications))
	for _, n := range m.notifications {
		out = append(out, n.EventType)
	}
	return out
}
