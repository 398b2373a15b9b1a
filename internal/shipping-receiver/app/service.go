// Package app implements the shipping receiver: a thin bridge that
// turns successful reservations into synchronous shipment requests
// against the shipping processor.
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/chaos"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/messaging"
)

// Group is this service's consumer group.
const Group = "shipping-receiver-group"

// Topics consumed: only reservation outcomes.
var Topics = []string{messaging.TopicInventoryReserved}

// ShipmentCreator is the slice of ProcessorClient the handler needs.
type ShipmentCreator interface {
	CreateShipment(ctx context.Context, orderID string) (string, error)
}

type Service struct {
	processor ShipmentCreator
	inject    *chaos.Injector
}

func NewService(processor ShipmentCreator, inject *chaos.Injector) *Service {
	if inject == nil {
		inject = chaos.Disabled()
	}
	return &Service{processor: processor, inject: inject}
}

// Handle reacts to inventory-reserved events. Anything that is not a
// RESERVED outcome is dropped; there is nothing to undo on failure, so a
// failed request is only logged and left for redelivery.
func (s *Service) Handle(ctx context.Context, msg messaging.Message) {
	outcome, err := messaging.ParseReservationOutcome(msg.Payload)
	if err != nil {
		slog.WarnContext(ctx, "dropping malformed payload", "topic", msg.Topic, "payload", msg.Payload, "error", err)
		return
	}
	if outcome.Status != messaging.ReservationReserved {
		slog.DebugContext(ctx, "ignoring non-reserved outcome", "order_id", outcome.OrderID, "status", outcome.Status)
		return
	}

	s.inject.SlowMessage(ctx, "reservation for order "+outcome.OrderID)

	shipmentID, err := s.processor.CreateShipment(ctx, outcome.OrderID)
	if err != nil {
		if errors.Is(err, ErrProcessorTimeout) {
			slog.ErrorContext(ctx, "shipment request timed out", "order_id", outcome.OrderID, "error", err)
		} else {
			slog.ErrorContext(ctx, "shipment request failed", "order_id", outcome.OrderID, "error", err)
		}
		return
	}
	slog.InfoContext(ctx, "shipment requested", "order_id", outcome.OrderID, "shipment_id", shipmentID)
}
