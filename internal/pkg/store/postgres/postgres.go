// Package postgres implements the store repositories on PostgreSQL via
// database/sql and lib/pq.
//
// Connections are pool-scoped per statement: acquire, use, release on
// every exit path. No transaction spans multiple statements; the one
// read-modify-write that must be atomic (inventory reservation) is a
// single conditional UPDATE instead.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
)

// schema is the DDL executed once on startup. Idempotent via IF NOT
// EXISTS; there is no migration machinery.
const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id              VARCHAR(255) PRIMARY KEY,
    customer_name   VARCHAR(255),
    customer_email  VARCHAR(255),
    product         VARCHAR(255),
    quantity        INTEGER,
    price           DECIMAL(10, 2),
    status          VARCHAR(50) DEFAULT 'PENDING',
    created_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS inventory (
    id              SERIAL PRIMARY KEY,
    product_name    VARCHAR(255) UNIQUE,
    quantity        INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS shipments (
    id              VARCHAR(255) PRIMARY KEY,
    order_id        VARCHAR(255),
    carrier         VARCHAR(100),
    tracking_number VARCHAR(255),
    status          VARCHAR(50) DEFAULT 'PENDING',
    created_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

var jdbcPattern = regexp.MustCompile(`^jdbc:postgresql://([^:/]+):(\d+)/(\w+)$`)

// DSNFromJDBC converts a Java-style JDBC URL into a lib/pq DSN. The
// deployment environment hands every service the same DB_URL in JDBC
// form, so this keeps the Go services drop-in compatible with it.
func DSNFromJDBC(jdbcURL, user, password string) (string, error) {
	m := jdbcPattern.FindStringSubmatch(jdbcURL)
	if m == nil {
		return "", fmt.Errorf("postgres: invalid JDBC URL %q", jdbcURL)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     m[1] + ":" + m[2],
		Path:     "/" + m[3],
		RawQuery: "sslmode=disable",
	}
	return u.String(), nil
}

// Store bundles the three repositories over one shared pool.
type Store struct {
	db *sql.DB

	Orders    *OrderRepository
	Inventory *InventoryRepository
	Shipments *ShipmentRepository
}

// Open builds the pool for the given DSN. sql.Open does not dial, so
// this never fails on an unreachable backend; callers probe readiness
// with Ping and treat exhaustion as degraded, not fatal.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(time.Minute)
	return NewStore(db), nil
}

// NewStore wraps an existing pool; used by tests with sqlmock.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:        db,
		Orders:    &OrderRepository{db: db},
		Inventory: &InventoryRepository{db: db},
		Shipments: &ShipmentRepository{db: db},
	}
}

// DB exposes the pool for the fault injector's burn query.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error { return s.db.Close() }

// InitSchema applies the DDL. Safe to call on every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

// Seed resets the stock levels to the defaults. Idempotent.
func (s *Store) Seed(ctx context.Context) error {
	for _, lvl := range store.SeedInventory {
		if err := s.Inventory.Upsert(ctx, lvl.Product, lvl.Quantity); err != nil {
			return err
		}
	}
	return nil
}
