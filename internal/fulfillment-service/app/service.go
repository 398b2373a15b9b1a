// Package app implements the fulfillment service: a probabilistic fraud
// decision on new orders, plus the shared order-updates projection.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/chaos"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/journal"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/messaging"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
)

const serviceName = "fulfillment-service"

// Group is this service's consumer group.
const Group = "fulfillment-group"

var Topics = []string{messaging.TopicOrders, messaging.TopicOrderUpdates}

// fraudRate is the probability an order is flagged.
const fraudRate = 0.10

// Service holds the fraud check and projection logic.
type Service struct {
	orders  store.OrderRepository
	inject  *chaos.Injector
	journal journal.Recorder
	burn    chaos.Execer

	// roll returns a uniform value in [0,1); overridable in tests.
	roll func() float64
}

func NewService(orders store.OrderRepository, inject *chaos.Injector, rec journal.Recorder, burn chaos.Execer) *Service {
	if inject == nil {
		inject = chaos.Disabled()
	}
	return &Service{orders: orders, inject: inject, journal: rec, burn: burn, roll: rand.Float64}
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

// handleOrderCreated draws the fraud decision and writes it straight to
// the order row. The result is deliberately not published to
// order-updates: a fraud verdict is visible only via direct lookup.
func (s *Service) handleOrderCreated(ctx context.Context, payload string) {
	evt, err := messaging.ParseOrderCreated(payload)
	if err != nil {
		slog.WarnContext(ctx, "dropping malformed message", "topic", messaging.TopicOrders, "payload", payload, "error", err)
		return
	}
	orderID := evt.OrderID
	label := fmt.Sprintf("order %.8s", orderID)
	slog.InfoContext(ctx, "processing order for fraud check", "order_id", orderID)

	s.inject.SlowMessage(ctx, label)
	if err := s.inject.SlowDatabase(ctx, s.burn, label); err != nil {
		slog.ErrorContext(ctx, "abandoning fraud check", "order_id", orderID, "error", err)
		return
	}

	if _, err := s.orders.Get(ctx, orderID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.ErrorContext(ctx, "order not found", "order_id", orderID)
		} else {
			slog.ErrorContext(ctx, "order lookup failed", "order_id", orderID, "error", err)
		}
		return
	}

	status := store.OrderFraudCheckPassed
	if s.roll() < fraudRate {
		status = store.OrderFraudDetected
		slog.WarnContext(ctx, "fraud detected", "order_id", orderID)
	} else {
		slog.InfoContext(ctx, "fraud check passed", "order_id", orderID)
	}

	if _, err := s.orders.UpdateStatus(ctx, orderID, status); err != nil {
		slog.ErrorContext(ctx, "fraud status write failed", "order_id", orderID, "error", err)
		return
	}
	if err := journal.Record(ctx, s.journal, serviceName, orderID, status); err != nil {
		slog.WarnContext(ctx, "journal write failed", "order_id", orderID, "error", err)
	}
}

// handleOrderUpdate blindly overwrites the status column with whatever
// the payload carries; malformed payloads are logged and dropped.
func (s *Service) handleOrderUpdate(ctx context.Context, payload string) {
	evt, err := messaging.ParseOrderUpdate(payload)
	if err != nil {
		slog.WarnContext(ctx, "dropping malformed message", "topic", messaging.TopicOrderUpdates, "payload", payload, "error", err)
		return
	}

	// Simulated downstream latency on the projection path.
	s.inject.SlowMessage(ctx, fmt.Sprintf("update %.8s", evt.OrderID))

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
