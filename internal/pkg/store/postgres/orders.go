package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
)

const orderColumns = `id, customer_name, customer_email, product, quantity, price, status, created_at`

// OrderRepository is the PostgreSQL implementation of store.OrderRepository.
type OrderRepository struct {
	db *sql.DB
}

func (r *OrderRepository) Create(ctx context.Context, o *store.Order) error {
	const q = `
		INSERT INTO orders (id, customer_name, customer_email, product, quantity, price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, q,
		o.ID, o.CustomerName, o.CustomerEmail, o.Product, o.Quantity, o.Price.String(), o.Status)
	if err != nil {
		return fmt.Errorf("postgres: create order %q: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*store.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get order %q: %w", id, err)
	}
	return o, nil
}

func (r *OrderRepository) List(ctx context.Context, limit int) ([]store.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	return collectOrders(rows)
}

func (r *OrderRepository) ListByStatus(ctx context.Context, status string) ([]store.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, q, status)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by status %q: %w", status, err)
	}
	return collectOrders(rows)
}

func (r *OrderRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	const q = `SELECT status, COUNT(*) FROM orders GROUP BY status`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: count orders by status: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan order stats: %w", err)
		}
		stats[status] = n
	}
	return stats, rows.Err()
}

// UpdateStatus overwrites the status column unconditionally. The saga's
// status field is a last-writer-wins projection; no transition check
// belongs here.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id, status string) (bool, error) {
	const q = `UPDATE orders SET status = $1 WHERE id = $2`

	res, err := r.db.ExecContext(ctx, q, status, id)
	if err != nil {
		return false, fmt.Errorf("postgres: update order %q status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: update order %q status: %w", id, err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*store.Order, error) {
	var o store.Order
	var price string
	if err := row.Scan(&o.ID, &o.CustomerName, &o.CustomerEmail, &o.Product,
		&o.Quantity, &price, &o.Status, &o.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows *sql.Rows) ([]store.Order, error) {
	defer rows.Close()
	var orders []store.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
