// Package app implements the inventory service: it reacts to new orders
// by reserving stock and echoes order-updates into the status column it
// shares with the other saga participants.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/chaos"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/journal"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/messaging"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
)

const serviceName = "inventory-service"

// Group is this service's consumer group; distinct per service so every
// service sees every message.
const Group = "inventory-group"

// Topics consumed: orders starts a reservation, order-updates is the
// shared status projection.
var Topics = []string{messaging.TopicOrders, messaging.TopicOrderUpdates}

// Service holds the reservation and projection logic.
type Service struct {
	orders    store.OrderRepository
	inventory store.InventoryRepository
	bus       messaging.Publisher
	inject    *chaos.Injector
	journal   journal.Recorder
	burn      chaos.Execer

	// unsafeReserve switches to the historical read-then-write
	// reservation, which can oversell when concurrent reservations for
	// the same product interleave. Off by default; kept for chaos demos
	// that want the race observable.
	unsafeReserve bool
}

func NewService(orders store.OrderRepository, inventory store.InventoryRepository, bus messaging.Publisher,
	inject *chaos.Injector, rec journal.Recorder, burn chaos.Execer, unsafeReserve bool) *Service {
	if inject == nil {
		inject = chaos.Disabled()
	}
	return &Service{
		orders:        orders,
		inventory:     inventory,
		bus:           bus,
		inject:        inject,
		journal:       rec,
		burn:          burn,
		unsafeReserve: unsafeReserve,
	}
}

// Levels lists current stock, for the read-only REST surface.
func (s *Service) Levels(ctx context.Context) ([]store.InventoryLevel, error) {
	return s.inventory.Levels(ctx)
}

// Handle dispatches one consumed message by topic.
func (s *Service) Handle(ctx context.Context, msg messaging.Message) {
	switch msg.Topic {
	case messaging.TopicOrders:
		s.handleOrderCreated(ctx, msg.Payload)
	case messaging.TopicOrderUpdates:
		s.handleOrderUpdate(ctx, msg.Payload)
	default:
		slog.WarnContext(ctx, "unexpected topic", "topic", msg.Topic)
	}
}

// handleOrderCreated reserves stock for a freshly created order and
// publishes the outcome. Failures here abandon the unit of work; the
// offset is already committed, so there is no retry.
func (s *Service) handleOrderCreated(ctx context.Context, payload string) {
	evt, err := messaging.ParseOrderCreated(payload)
	if err != nil {
		slog.WarnContext(ctx, "dropping malformed message", "topic", messaging.TopicOrders, "payload", payload, "error", err)
		return
	}
	orderID := evt.OrderID
	label := fmt.Sprintf("order %.8s", orderID)
	slog.InfoContext(ctx, "processing order for inventory", "order_id", orderID)

	s.inject.SlowMessage(ctx, label)
	if err := s.inject.SlowDatabase(ctx, s.burn, label); err != nil {
		slog.ErrorContext(ctx, "abandoning reservation", "order_id", orderID, "error", err)
		return
	}

	order, err := s.orders.Get(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		slog.ErrorContext(ctx, "order not found", "order_id", orderID)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "order lookup failed", "order_id", orderID, "error", err)
		return
	}

	reserved, err := s.reserve(ctx, order.Product, order.Quantity)
	if err != nil {
		slog.ErrorContext(ctx, "reservation failed", "order_id", orderID, "product", order.Product, "error", err)
		return
	}

	if !reserved {
		slog.WarnContext(ctx, "insufficient inventory", "order_id", orderID, "product", order.Product, "quantity", order.Quantity)
		s.publishUpdate(ctx, orderID, store.OrderOutOfStock)
		return
	}

	slog.InfoContext(ctx, "inventory reserved", "order_id", orderID, "product", order.Product, "quantity", order.Quantity)
	s.publish(ctx, messaging.TopicInventoryReserved,
		messaging.ReservationOutcome{OrderID: orderID, Status: messaging.ReservationReserved})
	s.publishUpdate(ctx, orderID, store.OrderInventoryReserved)
}

// reserve picks the reservation strategy. The conditional update is the
// default; the unsafe path reproduces the original separate read and
// write with the interleaving window between them.
func (s *Service) reserve(ctx context.Context, product string, qty int) (bool, error) {
	if !s.unsafeReserve {
		return s.inventory.Reserve(ctx, product, qty)
	}

	have, err := s.inventory.Level(ctx, product)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if have < qty {
		return false, nil
	}
	// Interleaving window: another consumer may decrement between the
	// read above and this write, overselling the product.
	if err := s.inventory.Decrement(ctx, product, qty); err != nil {
		return false, err
	}
	return true, nil
}

// handleOrderUpdate is the shared projection path: parse and blindly
// overwrite. Whatever applies last wins.
func (s *Service) handleOrderUpdate(ctx context.Context, payload string) {
	evt, err := messaging.ParseOrderUpdate(payload)
	if err != nil {
		slog.WarnContext(ctx, "dropping malformed message", "topic", messaging.TopicOrderUpdates, "payload", payload, "error", err)
		return
	}

	found, err := s.orders.UpdateStatus(ctx, evt.OrderID, evt.Status)
	if err != nil {
		slog.ErrorContext(ctx, "status projection failed", "order_id", evt.OrderID, "error", err)
		return
	}
	if !found {
		slog.WarnContext(ctx, "status update for unknown order", "order_id", evt.OrderID, "status", evt.Status)
		return
	}
	slog.InfoContext(ctx, "order status updated", "order_id", evt.OrderID, "status", evt.Status)

	if err := journal.Record(ctx, s.journal, serviceName, evt.OrderID, evt.Status); err != nil {
		slog.WarnContext(ctx, "journal write failed", "order_id", evt.OrderID, "error", err)
	}
}

func (s *Service) publishUpdate(ctx context.Context, orderID, status string) {
	s.publish(ctx, messaging.TopicOrderUpdates, messaging.OrderUpdate{OrderID: orderID, Status: status})
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
