// Package app implements the shipping processor: it owns shipment rows,
// creates them for reserved orders, and advances them through the
// CREATED → SHIPPED → DELIVERED lifecycle, publishing an event pair for
// every transition.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/chaos"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/journal"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/messaging"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
	"github.com/jcmexdev/fabrik-saga/internal/shipping-processor/domain"
)

const serviceName = "shipping-processor"

// Service holds the shipment lifecycle logic.
type Service struct {
	shipments store.ShipmentRepository
	bus       messaging.Publisher
	inject    *chaos.Injector
	journal   journal.Recorder
	burn      chaos.Execer

	roll func() float64
}

func NewService(shipments store.ShipmentRepository, bus messaging.Publisher, inject *chaos.Injector, rec journal.Recorder, burn chaos.Execer) *Service {
	if inject == nil {
		inject = chaos.Disabled()
	}
	return &Service{shipments: shipments, bus: bus, inject: inject, journal: rec, burn: burn, roll: rand.Float64}
}

// Create builds a CREATED shipment for the order and publishes the
// shipments/order-updates pair. Publish failures are logged, not
// returned; the row exists either way.
func (s *Service) Create(ctx context.Context, orderID string) (*store.Shipment, error) {
	id := uuid.NewString()
	label := fmt.Sprintf("shipment %.8s", id)

	s.inject.SlowService(ctx, label)
	if err := s.inject.SlowDatabase(ctx, s.burn, label); err != nil {
		return nil, err
	}

	carrier := domain.PickCarrier(s.roll())
	shipment := &store.Shipment{
		ID:             id,
		OrderID:        orderID,
		Carrier:        carrier,
		TrackingNumber: domain.TrackingNumber(carrier),
		Status:         store.ShipmentCreated,
	}
	if err := s.shipments.Create(ctx, shipment); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "shipment created",
		"shipment_id", id, "order_id", orderID, "carrier", carrier, "tracking_number", shipment.TrackingNumber)

	s.publishPair(ctx, id, orderID, store.ShipmentCreated, store.OrderShipmentCreated)
	return shipment, nil
}

// Ship advances CREATED → SHIPPED.
func (s *Service) Ship(ctx context.Context, id string) (*store.Shipment, error) {
	return s.advance(ctx, id, store.ShipmentCreated, store.ShipmentShipped, store.OrderShipped)
}

// Deliver advances SHIPPED → DELIVERED.
func (s *Service) Deliver(ctx context.Context, id string) (*store.Shipment, error) {
	return s.advance(ctx, id, store.ShipmentShipped, store.ShipmentDelivered, store.OrderDelivered)
}

func (s *Service) Get(ctx context.Context, id string) (*store.Shipment, error) {
	return s.shipments.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]store.Shipment, error) {
	return s.shipments.List(ctx, 100)
}

func (s *Service) advance(ctx context.Context, id, from, to, orderStatus string) (*store.Shipment, error) {
	orderID, err := s.shipments.UpdateStatusFrom(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "shipment status updated", "shipment_id", id, "order_id", orderID, "status", to)

	s.publishPair(ctx, id, orderID, to, orderStatus)

	return s.shipments.Get(ctx, id)
}

// publishPair emits the shipments event and the matching order-updates
// projection, and journals the order transition.
func (s *Service) publishPair(ctx context.Context, shipmentID, orderID, shipmentStatus, orderStatus string) {
	if payload, err := (messaging.ShipmentEvent{
		ShipmentID: shipmentID, OrderID: orderID, Status: shipmentStatus,
	}).Payload(); err == nil {
		s.publish(ctx, messaging.TopicShipments, payload)
	} else {
		slog.ErrorContext(ctx, "refusing to publish malformed event", "topic", messaging.TopicShipments, "error", err)
	}

	if payload, err := (messaging.OrderUpdate{OrderID: orderID, Status: orderStatus}).Payload(); err == nil {
		s.publish(ctx, messaging.TopicOrderUpdates, payload)
	} else {
		slog.ErrorContext(ctx, "refusing to publish malformed event", "topic", messaging.TopicOrderUpdates, "error", err)
	}

	if err := journal.Record(ctx, s.journal, serviceName, orderID, orderStatus); err != nil {
		slog.WarnContext(ctx, "journal write failed", "order_id", orderID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, topic, payload string) {
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		slog.ErrorContext(ctx, "publish failed", "topic", topic, "payload", payload, "error", err)
		return
	}
	slog.InfoContext(ctx, "event published", "topic", topic, "payload", payload)
}
