package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
)

// InventoryRepository is the PostgreSQL implementation of
// store.InventoryRepository.
type InventoryRepository struct {
	db *sql.DB
}

func (r *InventoryRepository) Levels(ctx context.Context) ([]store.InventoryLevel, error) {
	const q = `SELECT product_name, quantity FROM inventory ORDER BY product_name`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: list inventory: %w", err)
	}
	defer rows.Close()

	var levels []store.InventoryLevel
	for rows.Next() {
		var lvl store.InventoryLevel
		if err := rows.Scan(&lvl.Product, &lvl.Quantity); err != nil {
			return nil, fmt.Errorf("postgres: scan inventory: %w", err)
		}
		levels = append(levels, lvl)
	}
	return levels, rows.Err()
}

func (r *InventoryRepository) Level(ctx context.Context, product string) (int, error) {
	const q = `SELECT quantity FROM inventory WHERE product_name = $1`

	var qty int
	err := r.db.QueryRowContext(ctx, q, product).Scan(&qty)
	if err == sql.ErrNoRows {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: inventory level for %q: %w", product, err)
	}
	return qty, nil
}

// Reserve issues the check-and-decrement as one conditional UPDATE. The
// WHERE guard makes overselling impossible regardless of how concurrent
// reservations interleave; the affected-row count is the outcome.
func (r *InventoryRepository) Reserve(ctx context.Context, product string, qty int) (bool, error) {
	const q = `UPDATE inventory SET quantity = quantity - $1 WHERE product_name = $2 AND quantity >= $1`

	res, err := r.db.ExecContext(ctx, q, qty, product)
	if err != nil {
		return false, fmt.Errorf("postgres: reserve %d of %q: %w", qty, product, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: reserve %d of %q: %w", qty, product, err)
	}
	return n > 0, nil
}

// Decrement is the write half of the legacy read-then-write reservation.
// No guard: interleaved with a stale read it can oversell.
func (r *InventoryRepository) Decrement(ctx context.Context, product string, qty int) error {
	const q = `UPDATE inventory SET quantity = quantity - $1 WHERE product_name = $2`

	if _, err := r.db.ExecContext(ctx, q, qty, product); err != nil {
		return fmt.Errorf("postgres: decrement %d of %q: %w", qty, product, err)
	}
	return nil
}

func (r *InventoryRepository) Upsert(ctx context.Context, product string, qty int) error {
	const q = `
		INSERT INTO inventory (product_name, quantity) VALUES ($1, $2)
		ON CONFLICT (product_name) DO UPDATE SET quantity = EXCLUDED.quantity`

	if _, err := r.db.ExecContext(ctx, q, product, qty); err != nil {
		return fmt.Errorf("postgres: upsert inventory %q: %w", product, err)
	}
	return nil
}
