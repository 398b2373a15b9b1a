// Package journal defines the saga journal: a durable audit trail of
// every order status transition a service applies.
//
// The choreography has no central coordinator, so the orders.status
// column only ever shows the last write. The journal keeps the full
// sequence of applied transitions, which serves two purposes:
//
//  1. Observability: query the journal to see the exact processing order
//     behind a final status, and correlate each write with a distributed
//     trace via the trace_id field.
//
//  2. Debugging interleavings: when fault injection reorders consumers,
//     the journal shows which writer won and when.
//
// Recording is strictly best-effort; a journal failure never fails the
// transition it describes.
package journal

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Entry is one applied status transition.
type Entry struct {
	// OrderID identifies the order whose status was written.
	OrderID string

	// Status is the value that was written.
	Status string

	// Source names the service that applied the write (e.g.
	// "inventory-service"), since several services mutate the same row.
	Source string

	// TraceID is the W3C trace ID from the OpenTelemetry span active when
	// the transition was applied; empty when no span was recording.
	TraceID string

	// SpanID pinpoints the exact operation within the trace.
	SpanID string

	// RecordedAt is the wall-clock time of the write.
	RecordedAt time.Time
}

// Recorder is the port for persisting journal entries. Services hold it
// nil-safely: a nil Recorder simply skips journaling.
type Recorder interface {
	// Record appends one entry; the journal is append-only.
	Record(ctx context.Context, e *Entry) error
}

// NewEntry builds an Entry for the given transition with trace identity
// extracted from ctx.
func NewEntry(ctx context.Context, source, orderID, status string) *Entry {
	e := &Entry{
		OrderID:    orderID,
		Status:     status,
		Source:     source,
		RecordedAt: time.Now().UTC(),
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		e.TraceID = sc.TraceID().String()
		e.SpanID = sc.SpanID().String()
	}
	return e
}

// Record is a nil-safe convenience wrapper used by the services.
func Record(ctx context.Context, r Recorder, source, orderID, status string) error {
	if r == nil {
		return nil
	}
	return r.Record(ctx, NewEntry(ctx, source, orderID, status))
}
