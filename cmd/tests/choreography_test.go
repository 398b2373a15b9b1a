// End-to-end choreography over the in-memory bus and store: one process,
// real services, real consumers, a real HTTP hop between the shipping
// receiver and processor.
package tests

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fulfillment "github.com/jcmexdev/fabrik-saga/internal/fulfillment-service/app"
	inventory "github.com/jcmexdev/fabrik-saga/internal/inventory-service/app"
	order "github.com/jcmexdev/fabrik-saga/internal/order-service/app"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/messaging"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/store/memory"
	receiver "github.com/jcmexdev/fabrik-saga/internal/shipping-receiver/app"
	processor "github.com/jcmexdev/fabrik-saga/internal/shipping-processor/app"
	processorhttp "github.com/jcmexdev/fabrik-saga/internal/shipping-processor/httpx"
)

// observer tails topics through its own consumer group so assertions do
// not steal messages from the services under test.
type observer struct {
	mu   sync.Mutex
	seen []messaging.Message
}

func (o *observer) handle(_ context.Context, msg messaging.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, msg)
}

func (o *observer) payloads(topic string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, m := range o.seen {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

type fixture struct {
	bus       *messaging.MemoryBus
	st        *memory.Store
	orders    *order.Service
	obs       *observer
	consumers []*messaging.Consumer
}

func startSaga(t *testing.T) *fixture {
	t.Helper()

	bus := messaging.NewMemoryBus()
	st := memory.NewStore()
	require.NoError(t, st.Seed(context.Background()))

	orderSvc := order.NewService(st.Orders, bus, nil, nil, nil)
	inventorySvc := inventory.NewService(st.Orders, st.Inventory, bus, nil, nil, nil, false)
	fulfillmentSvc := fulfillment.NewService(st.Orders, nil, nil, nil)

	processorSvc := processor.NewService(st.Shipments, bus, nil, nil, nil)
	processorSrv := httptest.NewServer(processorhttp.NewRouter(processorhttp.NewHandler(processorSvc)))
	t.Cleanup(processorSrv.Close)

	receiverSvc := receiver.NewService(receiver.NewProcessorClient(processorSrv.URL), nil)

	obs := &observer{}
	observerTopics := []string{messaging.TopicOrderUpdates, messaging.TopicInventoryReserved, messaging.TopicShipments}

	// Subscriptions must exist before the first publish or the bus has
	// nowhere to fan out to.
	bus.Register(inventory.Group, inventory.Topics...)
	bus.Register(fulfillment.Group, fulfillment.Topics...)
	bus.Register(receiver.Group, receiver.Topics...)
	bus.Register("test-observer", observerTopics...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	consumers := []*messaging.Consumer{
		messaging.NewConsumer("inventory-service", bus, inventory.Group, inventory.Topics, inventorySvc.Handle),
		messaging.NewConsumer("fulfillment-service", bus, fulfillment.Group, fulfillment.Topics, fulfillmentSvc.Handle),
		messaging.NewConsumer("shipping-receiver", bus, receiver.Group, receiver.Topics, receiverSvc.Handle),
		messaging.NewConsumer("test-observer", bus, "test-observer", observerTopics, obs.handle),
	}
	for _, c := range consumers {
		c.Start(ctx)
	}
	t.Cleanup(func() {
		for _, c := range consumers {
			c.Stop()
			<-c.Done()
		}
	})

	return &fixture{bus: bus, st: st, orders: orderSvc, obs: obs, consumers: consumers}
}

func TestOrderFlowsThroughReservationAndShipping(t *testing.T) {
	f := startSaga(t)
	ctx := context.Background()

	created, err := f.orders.Create(ctx, order.CreateParams{
		Product:  "Widget A",
		Quantity: 3,
		Price:    decimal.RequireFromString("19.99"),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		lvl, err := f.st.Inventory.Level(ctx, "Widget A")
		return err == nil && lvl == 97
	}, 5*time.Second, 10*time.Millisecond, "reservation never decremented stock")

	require.Eventually(t, func() bool {
		for _, p := range f.obs.payloads(messaging.TopicInventoryReserved) {
			if p == created.ID+":RESERVED" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "RESERVED outcome never published")

	// Fraud screening is probabilistic, so the saga forks: either the
	// shipment side progresses or the fraud write sticks. Every observed
	// status must still come from the known vocabulary.
	allowed := map[string]bool{
		store.OrderPending:           true,
		store.OrderCreatedStatus:     true,
		store.OrderFraudCheckPassed:  true,
		store.OrderFraudDetected:     true,
		store.OrderInventoryReserved: true,
		store.OrderShipmentCreated:   true,
	}
	require.Eventually(t, func() bool {
		got, err := f.st.Orders.Get(ctx, created.ID)
		return err == nil && got.Status != store.OrderPending && got.Status != store.OrderCreatedStatus
	}, 5*time.Second, 10*time.Millisecond, "order status never progressed")

	got, err := f.st.Orders.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, allowed[got.Status], "unexpected order status %q", got.Status)

	// A shipment exists once the receiver's HTTP hop lands; expressed as
	// the shipments event, which carries this order's id.
	require.Eventually(t, func() bool {
		for _, p := range f.obs.payloads(messaging.TopicShipments) {
			parsed, err := messaging.ParseShipmentEvent(p)
			if err == nil && parsed.OrderID == created.ID && parsed.Status == store.ShipmentCreated {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "shipment event never published")
}

func TestOutOfStockRejectsWithoutMutation(t *testing.T) {
	f := startSaga(t)
	ctx := context.Background()

	created, err := f.orders.Create(ctx, order.CreateParams{
		Product:  "Gadget Y",
		Quantity: 50,
		Price:    decimal.RequireFromString("5.00"),
	})
	require.NoError(t, err)

	// Rejections ride order-updates only; inventory-reserved carries
	// nothing for a failed reservation.
	require.Eventually(t, func() bool {
		for _, p := range f.obs.payloads(messaging.TopicOrderUpdates) {
			if p == created.ID+":OUT_OF_STOCK" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "OUT_OF_STOCK outcome never published")

	for _, p := range f.obs.payloads(messaging.TopicInventoryReserved) {
		assert.NotContains(t, p, created.ID)
	}

	lvl, err := f.st.Inventory.Level(ctx, "Gadget Y")
	require.NoError(t, err)
	assert.Equal(t, 5, lvl, "a rejected reservation must not touch stock")

	assert.Empty(t, f.obs.payloads(messaging.TopicShipments), "no shipment for a rejected reservation")
}

func TestCancelUnknownOrderPublishesNothing(t *testing.T) {
	f := startSaga(t)

	err := f.orders.Cancel(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, store.ErrNotFound)

	time.Sleep(50 * time.Millisecond)
	for _, p := range f.obs.payloads(messaging.TopicOrderUpdates) {
		assert.NotContains(t, p, "does-not-exist")
	}
}

func TestCancelOverwritesStatus(t *testing.T) {
	f := startSaga(t)
	ctx := context.Background()

	created, err := f.orders.Create(ctx, order.CreateParams{
		Product:  "Widget B",
		Quantity: 1,
		Price:    decimal.RequireFromString("9.99"),
	})
	require.NoError(t, err)

	require.NoError(t, f.orders.Cancel(ctx, created.ID))

	require.Eventually(t, func() bool {
		for _, p := range f.obs.payloads(messaging.TopicOrderUpdates) {
			if p == created.ID+":CANCELLED" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "cancellation never published")
}
