package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
)

const shipmentColumns = `id, order_id, carrier, tracking_number, status, created_at`

// ShipmentRepository is the PostgreSQL implementation of
// store.ShipmentRepository.
type ShipmentRepository struct {
	db *sql.DB
}

func (r *ShipmentRepository) Create(ctx context.Context, s *store.Shipment) error {
	const q = `
		INSERT INTO shipments (id, order_id, carrier, tracking_number, status)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, q, s.ID, s.OrderID, s.Carrier, s.TrackingNumber, s.Status)
	if err != nil {
		return fmt.Errorf("postgres: create shipment %q: %w", s.ID, err)
	}
	return nil
}

func (r *ShipmentRepository) Get(ctx context.Context, id string) (*store.Shipment, error) {
	const q = `SELECT ` + shipmentColumns + ` FROM shipments WHERE id = $1`

	var s store.Shipment
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.OrderID, &s.Carrier, &s.TrackingNumber, &s.Status, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get shipment %q: %w", id, err)
	}
	return &s, nil
}

func (r *ShipmentRepository) List(ctx context.Context, limit int) ([]store.Shipment, error) {
	const q = `SELECT ` + shipmentColumns + ` FROM shipments ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list shipments: %w", err)
	}
	defer rows.Close()

	var shipments []store.Shipment
	for rows.Next() {
		var s store.Shipment
		if err := rows.Scan(&s.ID, &s.OrderID, &s.Carrier, &s.TrackingNumber, &s.Status, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan shipment: %w", err)
		}
		shipments = append(shipments, s)
	}
	return shipments, rows.Err()
}

// UpdateStatusFrom advances the shipment only when it currently sits in
// from, keeping the lifecycle strictly forward. The guarded UPDATE and
// the follow-up existence check distinguish "no such shipment" from
// "wrong state".
func (r *ShipmentRepository) UpdateStatusFrom(ctx context.Context, id, from, to string) (string, error) {
	const q = `
		UPDATE shipments SET status = $1
		WHERE id = $2 AND status = $3
		RETURNING order_id`

	var orderID string
	err := r.db.QueryRowContext(ctx, q, to, id, from).Scan(&orderID)
	if err == sql.ErrNoRows {
		// Either the row is missing or the guard failed; one more read
		// tells which.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return "", getErr
		}
		return "", store.ErrConflict
	}
	if err != nil {
		return "", fmt.Errorf("postgres: advance shipment %q to %q: %w", id, to, err)
	}
	return orderID, nil
}
