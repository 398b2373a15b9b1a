// Package messaging defines the inter-service topic contract and the
// transports that carry it.
//
// Every payload is UTF-8 text with colon-delimited fields. Colons are not
// escaped, so field values must not contain ':'. Format methods reject
// such values and parsers treat short payloads as malformed. Each topic
// has an explicit schema type with a strict format/parse pair instead of
// ad hoc string splitting at call sites.
package messaging

import (
	"fmt"
	"strings"
)

// Topic names shared by every service.
const (
	TopicOrders            = "orders"
	TopicOrderUpdates      = "order-updates"
	TopicInventoryReserved = "inventory-reserved"
	TopicShipments         = "shipments"
)

// ReservationReserved is the only status the shipping receiver acts on.
const ReservationReserved = "RESERVED"

func checkField(name, v string) error {
	if v == "" {
		return fmt.Errorf("messaging: empty %s field", name)
	}
	if strings.Contains(v, ":") {
		return fmt.Errorf("messaging: %s field %q must not contain ':'", name, v)
	}
	return nil
}

// OrderCreated is carried on the "orders" topic: the bare order id.
type OrderCreated struct {
	OrderID string
}

func (e OrderCreated) Payload() (string, error) {
	if err := checkField("order id", e.OrderID); err != nil {
		return "", err
	}
	return e.OrderID, nil
}

func ParseOrderCreated(payload string) (OrderCreated, error) {
	if err := checkField("order id", payload); err != nil {
		return OrderCreated{}, fmt.Errorf("messaging: bad orders payload %q: %w", payload, err)
	}
	return OrderCreated{OrderID: payload}, nil
}

// OrderUpdate is carried on "order-updates": "{orderId}:{status}".
// Consumers that own order state blindly overwrite the status field with
// whatever the payload carries (last-writer-wins projection).
type OrderUpdate struct {
	OrderID string
	Status  string
}

func (e OrderUpdate) Payload() (string, error) {
	if err := checkField("order id", e.OrderID); err != nil {
		return "", err
	}
	if err := checkField("status", e.Status); err != nil {
		return "", err
	}
	return e.OrderID + ":" + e.Status, nil
}

// ParseOrderUpdate rejects payloads with fewer than two colon-delimited
// fields. Extra fields are tolerated and ignored, matching the wire
// behavior consumers have always had.
func ParseOrderUpdate(payload string) (OrderUpdate, error) {
	parts := strings.Split(payload, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return OrderUpdate{}, fmt.Errorf("messaging: bad order-updates payload %q", payload)
	}
	return OrderUpdate{OrderID: parts[0], Status: parts[1]}, nil
}

// ReservationOutcome is carried on "inventory-reserved":
// "{orderId}:{status}". The inventory service only ever publishes
// RESERVED; consumers must ignore anything else.
type ReservationOutcome struct {
	OrderID string
	Status  string
}

func (e ReservationOutcome) Payload() (string, error) {
	if err := checkField("order id", e.OrderID); err != nil {
		return "", err
	}
	if err := checkField("status", e.Status); err != nil {
		return "", err
	}
	return e.OrderID + ":" + e.Status, nil
}

func ParseReservationOutcome(payload string) (ReservationOutcome, error) {
	parts := strings.Split(payload, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ReservationOutcome{}, fmt.Errorf("messaging: bad inventory-reserved payload %q", payload)
	}
	return ReservationOutcome{OrderID: parts[0], Status: parts[1]}, nil
}

// ShipmentEvent is carried on "shipments":
// "{shipmentId}:{orderId}:{status}". Consumed by external monitoring
// only; fabrik services just produce it.
type ShipmentEvent struct {
	ShipmentID string
	OrderID    string
	Status     string
}

func (e ShipmentEvent) Payload() (string, error) {
	for _, f := range []struct{ name, v string }{
		{"shipment id", e.ShipmentID},
		{"order id", e.OrderID},
		{"status", e.Status},
	} {
		if err := checkField(f.name, f.v); err != nil {
			return "", err
		}
	}
	return e.ShipmentID + ":" + e.OrderID + ":" + e.Status, nil
}

func ParseShipmentEvent(payload string) (ShipmentEvent, error) {
	parts := strings.Split(payload, ":")
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ShipmentEvent{}, fmt.Errorf("messaging: bad shipments payload %q", payload)
	}
	return ShipmentEvent{ShipmentID: parts[0], OrderID: parts[1], Status: parts[2]}, nil
}
