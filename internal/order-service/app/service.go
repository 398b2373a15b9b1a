// Package app implements the order service: the saga's entry point. It
// persists new orders, gates on the fault injector, and publishes the
// creation and cancellation events that drive every downstream consumer.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/chaos"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/journal"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/messaging"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
)

const serviceName = "order-service"

// Defaults applied when a creation request omits fields. Load-generator
// traffic frequently posts empty bodies.
var (
	DefaultCustomerName  = "Test Customer"
	DefaultCustomerEmail = "test@example.com"
	DefaultProduct       = "Widget"
	DefaultQuantity      = 1
	DefaultPrice         = decimal.NewFromFloat(99.99)
)

// Service wires the order repository, the publisher and the fault
// injector. The publisher is handed in explicitly; there is no implicit
// process-wide handle.
type Service struct {
	orders  store.OrderRepository
	bus     messaging.Publisher
	inject  *chaos.Injector
	journal journal.Recorder // nil-safe: journaling skipped if nil
	burn    chaos.Execer     // nil when the store has no SQL backend
}

func NewService(orders store.OrderRepository, bus messaging.Publisher, inject *chaos.Injector, rec journal.Recorder, burn chaos.Execer) *Service {
	if inject == nil {
		inject = chaos.Disabled()
	}
	return &Service{orders: orders, bus: bus, inject: inject, journal: rec, burn: burn}
}

// CreateParams carries the optional creation fields; zero values take
// the defaults above.
type CreateParams struct {
	CustomerName  string
	CustomerEmail string
	Product       string
	Quantity      int
	Price         decimal.Decimal
}

func (p *CreateParams) applyDefaults() {
	if p.CustomerName == "" {
		p.CustomerName = DefaultCustomerName
	}
	if p.CustomerEmail == "" {
		p.CustomerEmail = DefaultCustomerEmail
	}
	if p.Product == "" {
		p.Product = DefaultProduct
	}
	if p.Quantity <= 0 {
		p.Quantity = DefaultQuantity
	}
	if p.Price.IsZero() {
		p.Price = DefaultPrice
	}
}

// Create persists a PENDING order and publishes the events that start
// the choreography. Publish failures are logged, not returned: the order
// row exists and the client gets it back either way, exactly as if the
// broker had dropped the message later.
func (s *Service) Create(ctx context.Context, params CreateParams) (*store.Order, error) {
	id := uuid.NewString()
	label := fmt.Sprintf("order %.8s", id)

	s.inject.SlowService(ctx, label)
	if err := s.inject.SlowDatabase(ctx, s.burn, label); err != nil {
		return nil, err
	}

	params.applyDefaults()
	order := &store.Order{
		ID:            id,
		CustomerName:  params.CustomerName,
		CustomerEmail: params.CustomerEmail,
		Product:       params.Product,
		Quantity:      params.Quantity,
		Price:         params.Price,
		Status:        store.OrderPending,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "order created", "order_id", id, "product", order.Product, "quantity", order.Quantity)

	if err := journal.Record(ctx, s.journal, serviceName, id, store.OrderPending); err != nil {
		slog.WarnContext(ctx, "journal write failed", "order_id", id, "error", err)
	}

	s.publish(ctx, messaging.TopicOrders, messaging.OrderCreated{OrderID: id})
	s.publish(ctx, messaging.TopicOrderUpdates, messaging.OrderUpdate{OrderID: id, Status: store.OrderCreatedStatus})

	return order, nil
}

// Cancel moves an order to CANCELLED. An unknown id returns
// store.ErrNotFound and publishes nothing.
func (s *Service) Cancel(ctx context.Context, id string) error {
	found, err := s.orders.UpdateStatus(ctx, id, store.OrderCancelled)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	slog.InfoContext(ctx, "order cancelled", "order_id", id)

	if err := journal.Record(ctx, s.journal, serviceName, id, store.OrderCancelled); err != nil {
		slog.WarnContext(ctx, "journal write failed", "order_id", id, "error", err)
	}

	s.publish(ctx, messaging.TopicOrderUpdates, messaging.OrderUpdate{OrderID: id, Status: store.OrderCancelled})
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*store.Order, error) {
	return s.orders.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]store.Order, error) {
	return s.orders.List(ctx, 100)
}

func (s *Service) Recent(ctx context.Context) ([]store.Order, error) {
	return s.orders.List(ctx, 10)
}

func (s *Service) ListByStatus(ctx context.Context, status string) ([]store.Order, error) {
	return s.orders.ListByStatus(ctx, status)
}

func (s *Service) Stats(ctx context.Context) (map[string]int, error) {
	return s.orders.CountByStatus(ctx)
}

type payloader interface {
	Payload() (string, error)
}

func (s *Service) publish(ctx context.Context, topic string, event payloader) {
	payload, err := event.Payload()
	if err != nil {
		slog.ErrorContext(ctx, "refusing to publish malformed event", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		slog.ErrorContext(ctx, "publish failed", "topic", topic, "payload", payload, "error", err)
		return
	}
	slog.InfoContext(ctx, "event published", "topic", topic, "payload", payload)
}
