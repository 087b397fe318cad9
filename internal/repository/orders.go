package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/Christophe-THEVENET/greengoodies/domain"
)

const uniqueViolation = "23505"

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OrderRepository is the persistence port for pending and validated orders,
// plus the notification outbox written in the same store.
type OrderRepository interface {
	FindUnvalidatedByUser(ctx context.Context, userID int64) (*domain.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Create(ctx context.Context, userID int64) (*domain.Order, error)
	ReplaceLines(ctx context.Context, orderID uuid.UUID, lines []domain.OrderLine, total decimal.Decimal) error
	Delete(ctx context.Context, orderID uuid.UUID) error
	Finalize(ctx context.Context, orderID uuid.UUID, orderNumber string) error
	HighestOrderNumber(ctx context.Context, year int) (string, error)
	LastValidOrdersByUser(ctx context.Context, userID int64, limit int) ([]*domain.Order, error)

	EnqueueNotification(ctx context.Context, n *Notification) error
	UnpublishedNotifications(ctx context.Context, limit int) ([]*Notification, error)
	MarkNotificationPublished(ctx context.Context, id int64) error

	Close() error
	RunMigrations(cred *Credentials) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// DB exposes the underlying handle so the catalog can share the connection pool.
func (r *Repository) DB() *sql.DB {
	return r.db
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) FindUnvalidatedByUser(ctx context.Context, userID int64) (*domain.Order, error) {
	query := `SELECT id, user_id, total_amount, is_valid, COALESCE(order_number, ''), created_at, updated_at
	          FROM orders WHERE user_id = $1 AND NOT is_valid`

	order, err := r.scanOrder(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, err
	}

	order.Lines, err = r.orderLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT id, user_id, total_amount, is_valid, COALESCE(order_number, ''), created_at, updated_at
	          FROM orders WHERE id = $1`

	order, err := r.scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	order.Lines, err = r.orderLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Create inserts an empty pending order for the user. The partial unique
// index on (user_id) WHERE NOT is_valid turns a concurrent create into
// ErrPendingOrderExists.
func (r *Repository) Create(ctx context.Context, userID int64) (*domain.Order, error) {
	id := uuid.New()
	query := `INSERT INTO orders (id, user_id, total_amount, is_valid, created_at, updated_at)
	          VALUES ($1, $2, 0, FALSE, NOW(), NOW())`

	if _, err := r.db.ExecContext(ctx, query, id, userID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrPendingOrderExists
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	return r.FindByID(ctx, id)
}

// ReplaceLines swaps the order's whole line set and total in one transaction.
func (r *Repository) ReplaceLines(ctx context.Context, orderID uuid.UUID, lines []domain.OrderLine, total decimal.Decimal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace lines: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}

	insert := `INSERT INTO order_lines (order_id, product_id, product_name, product_image, quantity, unit_price, line_total)
	           VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, insert,
			orderID,
			line.ProductID,
			line.ProductName,
			line.ProductImage,
			line.Quantity,
			line.UnitPrice,
			line.LineTotal,
		); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET total_amount = $2, updated_at = NOW() WHERE id = $1 AND NOT is_valid`,
		orderID, total)
	if err != nil {
		return fmt.Errorf("update order total: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order total: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace lines: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, orderID uuid.UUID) error {
	// Lines go with the order via ON DELETE CASCADE.
	if _, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1 AND NOT is_valid`, orderID); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

// Finalize flips the order to valid and stamps its number. The unique index
// on order_number turns a lost-update race into ErrOrderNumberTaken.
func (r *Repository) Finalize(ctx context.Context, orderID uuid.UUID, orderNumber string) error {
	query := `UPDATE orders SET is_valid = TRUE, order_number = $2, updated_at = NOW()
	          WHERE id = $1 AND NOT is_valid`

	res, err := r.db.ExecContext(ctx, query, orderID, orderNumber)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrOrderNumberTaken
		}
		return fmt.Errorf("finalize order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize order: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// HighestOrderNumber returns the highest assigned number of the year among
// valid orders, or "" when the year has none. Zero-padded sequences make the
// lexicographic ORDER BY match numeric order.
func (r *Repository) HighestOrderNumber(ctx context.Context, year int) (string, error) {
	query := `SELECT order_number FROM orders
	          WHERE is_valid AND order_number LIKE $1
	          ORDER BY order_number DESC LIMIT 1`

	var number string
	err := r.db.QueryRowContext(ctx, query, fmt.Sprintf("%d-%%", year)).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query highest order number: %w", err)
	}
	return number, nil
}

func (r *Repository) LastValidOrdersByUser(ctx context.Context, userID int64, limit int) ([]*domain.Order, error) {
	query := `SELECT id, user_id, total_amount, is_valid, COALESCE(order_number, ''), created_at, updated_at
	          FROM orders WHERE user_id = $1 AND is_valid
	          ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query valid orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, order := range orders {
		if order.Lines, err = r.orderLines(ctx, order.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.TotalAmount,
		&order.IsValid,
		&order.OrderNumber,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &order, nil
}

func (r *Repository) orderLines(ctx context.Context, orderID uuid.UUID) ([]domain.OrderLine, error) {
	query := `SELECT id, order_id, product_id, product_name, product_image, quantity, unit_price, line_total
	          FROM order_lines WHERE order_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.ProductID,
			&line.ProductName,
			&line.ProductImage,
			&line.Quantity,
			&line.UnitPrice,
			&line.LineTotal,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}
