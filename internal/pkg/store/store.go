// Package store defines the persistent records shared by the fabrik
// services (orders, inventory levels, shipments) and the repository
// ports each service depends on. Implementations live in subpackages:
// postgres for production, memory for tests and single-process demos.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a lookup or update targets a row that
	// does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a guarded status transition finds the
	// row in a different state than required.
	ErrConflict = errors.New("store: conflicting state")
)

// Order lifecycle statuses. The status column is a last-writer-wins
// projection of the order-updates topic: whichever consumer applies an
// update last determines the value, irrespective of publish order.
const (
	OrderPending           = "PENDING"
	OrderCreatedStatus     = "CREATED"
	OrderFraudCheckPassed  = "FRAUD_CHECK_PASSED"
	OrderFraudDetected     = "FRAUD_DETECTED"
	OrderInventoryReserved = "INVENTORY_RESERVED"
	OrderOutOfStock        = "OUT_OF_STOCK"
	OrderShipmentCreated   = "SHIPMENT_CREATED"
	OrderShipped           = "SHIPPED"
	OrderDelivered         = "DELIVERED"
	OrderCancelled         = "CANCELLED"
)

// Shipment statuses; transitions only move forward.
const (
	ShipmentCreated   = "CREATED"
	ShipmentShipped   = "SHIPPED"
	ShipmentDelivered = "DELIVERED"
)

// Order is one row in the orders table. Rows are never deleted;
// cancellation is a status transition.
type Order struct {
	ID            string
	CustomerName  string
	CustomerEmail string
	Product       string
	Quantity      int
	Price         decimal.Decimal
	Status        string
	CreatedAt     time.Time
}

// InventoryLevel is the available quantity for one product. The quantity
// invariant: never negative, and a reservation either fully succeeds or
// leaves the level untouched.
type InventoryLevel struct {
	Product  string
	Quantity int
}

// Shipment is one row in the shipments table. At most one shipment
// references a given order.
type Shipment struct {
	ID             string
	OrderID        string
	Carrier        string
	TrackingNumber string
	Status         string
	CreatedAt      time.Time
}

// OrderRepository owns order rows. Every saga participant writes the
// status field through UpdateStatus, keyed by id.
type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, limit int) ([]Order, error)
	ListByStatus(ctx context.Context, status string) ([]Order, error)
	CountByStatus(ctx context.Context) (map[string]int, error)

	// UpdateStatus blindly overwrites the status column. Reports whether
	// a row was updated; false means the order does not exist.
	UpdateStatus(ctx context.Context, id, status string) (bool, error)
}

// InventoryRepository owns inventory levels.
type InventoryRepository interface {
	Levels(ctx context.Context) ([]InventoryLevel, error)

	// Level returns the available quantity for a product, or ErrNotFound.
	Level(ctx context.Context, product string) (int, error)

	// Reserve atomically decrements the level by qty if and only if at
	// least qty is available, reporting whether the reservation took.
	// This is the conditional form of the historical read-then-write and
	// cannot oversell under concurrency.
	Reserve(ctx context.Context, product string, qty int) (bool, error)

	// Decrement unconditionally subtracts qty. It exists solely for the
	// legacy unsafe reservation mode and can drive a level negative when
	// concurrent reservations interleave.
	Decrement(ctx context.Context, product string, qty int) error

	// Upsert sets a product's level, creating the row if needed. Used by
	// the idempotent startup seed.
	Upsert(ctx context.Context, product string, qty int) error
}

// ShipmentRepository owns shipment rows.
type ShipmentRepository interface {
	Create(ctx context.Context, s *Shipment) error
	Get(ctx context.Context, id string) (*Shipment, error)
	List(ctx context.Context, limit int) ([]Shipment, error)

	// UpdateStatusFrom advances a shipment from one status to the next,
	// returning the associated order id. ErrNotFound if the shipment does
	// not exist, ErrConflict if it is not currently in from.
	UpdateStatusFrom(ctx context.Context, id, from, to string) (orderID string, err error)
}

// SeedInventory is the default stock loaded at startup. Seeding is
// idempotent: existing rows are reset to these quantities.
var SeedInventory = []InventoryLevel{
	{Product: "Widget A", Quantity: 100},
	{Product: "Widget B", Quantity: 50},
	{Product: "Widget C", Quantity: 25},
	{Product: "Gadget X", Quantity: 10},
	{Product: "Gadget Y", Quantity: 5},
}
