// Package memory implements the store repositories on mutex-guarded
// maps. It backs tests and the single-process demo; semantics mirror the
// postgres package, including the atomic conditional reservation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
)

// Store bundles the three in-memory repositories.
type Store struct {
	Orders    *OrderRepository
	Inventory *InventoryRepository
	Shipments *ShipmentRepository
}

func NewStore() *Store {
	return &Store{
		Orders:    &OrderRepository{orders: make(map[string]store.Order)},
		Inventory: &InventoryRepository{levels: make(map[string]int)},
		Shipments: &ShipmentRepository{shipments: make(map[string]store.Shipment)},
	}
}

// Seed resets stock to the default levels, like postgres.Store.Seed.
func (s *Store) Seed(ctx context.Context) error {
	for _, lvl := range store.SeedInventory {
		if err := s.Inventory.Upsert(ctx, lvl.Product, lvl.Quantity); err != nil {
			return err
		}
	}
	return nil
}

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]store.Order
}

func (r *OrderRepository) Create(_ context.Context, o *store.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.orders[cp.ID] = cp
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id string) (*store.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (r *OrderRepository) List(_ context.Context, limit int) ([]store.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	orders := make([]store.Order, 0, len(r.orders))
	for _, o := range r.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (r *OrderRepository) ListByStatus(_ context.Context, status string) ([]store.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var orders []store.Order
	for _, o := range r.orders {
		if o.Status == status {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (r *OrderRepository) CountByStatus(_ context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make(map[string]int)
	for _, o := range r.orders {
		stats[o.Status]++
	}
	return stats, nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, id, status string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, nil
	}
	o.Status = status
	r.orders[id] = o
	return true, nil
}

type InventoryRepository struct {
	mu     sync.Mutex
	levels map[string]int
}

func (r *InventoryRepository) Levels(_ context.Context) ([]store.InventoryLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	levels := make([]store.InventoryLevel, 0, len(r.levels))
	for product, qty := range r.levels {
		levels = append(levels, store.InventoryLevel{Product: product, Quantity: qty})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Product < levels[j].Product })
	return levels, nil
}

func (r *InventoryRepository) Level(_ context.Context, product string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	qty, ok := r.levels[product]
	if !ok {
		return 0, store.ErrNotFound
	}
	return qty, nil
}

func (r *InventoryRepository) Reserve(_ context.Context, product string, qty int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	have, ok := r.levels[product]
	if !ok || have < qty {
		return false, nil
	}
	r.levels[product] = have - qty
	return true, nil
}

func (r *InventoryRepository) Decrement(_ context.Context, product string, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels[product] -= qty
	return nil
}

func (r *InventoryRepository) Upsert(_ context.Context, product string, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels[product] = qty
	return nil
}

type ShipmentRepository struct {
	mu        sync.RWMutex
	shipments map[string]store.Shipment
}

func (r *ShipmentRepository) Create(_ context.Context, s *store.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.shipments[cp.ID] = cp
	return nil
}

func (r *ShipmentRepository) Get(_ context.Context, id string) (*store.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shipments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (r *ShipmentRepository) List(_ context.Context, limit int) ([]store.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	shipments := make([]store.Shipment, 0, len(r.shipments))
	for _, s := range r.shipments {
		shipments = append(shipments, s)
	}
	sort.Slice(shipments, func(i, j int) bool { return shipments[i].CreatedAt.After(shipments[j].CreatedAt) })
	if limit > 0 && len(shipments) > limit {
		shipments = shipments[:limit]
	}
	return shipments, nil
}

func (r *ShipmentRepository) UpdateStatusFrom(_ context.Context, id, from, to string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shipments[id]
	if !ok {
		return "", store.ErrNotFound
	}
	if s.Status != from {
		return "", store.ErrConflict
	}
	s.Status = to
	r.shipments[id] = s
	return s.OrderID, nil
}
