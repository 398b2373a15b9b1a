package app

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/messaging"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/store/memory"
)

type recordingBus struct {
	mu   sync.Mutex
	sent []messaging.Message
}

func (b *recordingBus) Publish(_ context.Context, topic, payload string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, messaging.Message{Topic: topic, Payload: payload})
	return nil
}

func (b *recordingBus) messages() []messaging.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]messaging.Message(nil), b.sent...)
}

func fixture(t *testing.T, unsafeReserve bool) (*memory.Store, *recordingBus, *Service) {
	t.Helper()
	st := memory.NewStore()
	bus := &recordingBus{}
	svc := NewService(st.Orders, st.Inventory, bus, nil, nil, nil, unsafeReserve)
	return st, bus, svc
}

func createOrder(t *testing.T, st *memory.Store, id, product string, qty int) {
	t.Helper()
	require.NoError(t, st.Orders.Create(context.Background(), &store.Order{
		ID: id, Product: product, Quantity: qty, Status: store.OrderPending,
	}))
}

func TestReservationSuccessEmitsBothEvents(t *testing.T) {
	st, bus, svc := fixture(t, false)
	ctx := context.Background()
	require.NoError(t, st.Inventory.Upsert(ctx, "Widget A", 100))
	createOrder(t, st, "o-1", "Widget A", 3)

	svc.Handle(ctx, messaging.Message{Topic: messaging.TopicOrders, Payload: "o-1"})

	qty, err := st.Inventory.Level(ctx, "Widget A")
	require.NoError(t, err)
	assert.Equal(t, 97, qty)

	msgs := bus.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, messaging.TopicInventoryReserved, msgs[0].Topic)
	assert.Equal(t, "o-1:RESERVED", msgs[0].Payload)
	assert.Equal(t, messaging.TopicOrderUpdates, msgs[1].Topic)
	assert.Equal(t, "o-1:INVENTORY_RESERVED", msgs[1].Payload)
}

func TestReservationShortfallEmitsOutOfStock(t *testing.T) {
	st, bus, svc := fixture(t, false)
	ctx := context.Background()
	require.NoError(t, st.Inventory.Upsert(ctx, "Gadget Y", 5))
	createOrder(t, st, "o-2", "Gadget Y", 6)

	svc.Handle(ctx, messaging.Message{Topic: messaging.TopicOrders, Payload: "o-2"})

	// No mutation on rejection.
	qty, err := st.Inventory.Level(ctx, "Gadget Y")
	require.NoError(t, err)
	assert.Equal(t, 5, qty)

	msgs := bus.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, messaging.TopicOrderUpdates, msgs[0].Topic)
	assert.Equal(t, "o-2:OUT_OF_STOCK", msgs[0].Payload)
}

func TestReservationDeterministicAtBoundary(t *testing.T) {
	// Requesting exactly the available quantity always reserves.
	st, bus, svc := fixture(t, false)
	ctx := context.Background()
	require.NoError(t, st.Inventory.Upsert(ctx, "Widget C", 25))
	createOrder(t, st, "o-3", "Widget C", 25)

	svc.Handle(ctx, messaging.Message{Topic: messaging.TopicOrders, Payload: "o-3"})

	qty, err := st.Inventory.Level(ctx, "Widget C")
	require.NoError(t, err)
	assert.Equal(t, 0, qty)
	require.Len(t, bus.messages(), 2)
}

func TestUnknownOrderPublishesNothing(t *testing.T) {
	_, bus, svc := fixture(t, false)
	svc.Handle(context.Background(), messaging.Message{Topic: messaging.TopicOrders, Payload: "ghost"})
	assert.Empty(t, bus.messages())
}

func TestMalformedUpdateDroppedWithoutMutation(t *testing.T) {
	st, bus, svc := fixture(t, false)
	ctx := context.Background()
	createOrder(t, st, "o-4", "Widget A", 1)

	svc.Handle(ctx, messaging.Message{Topic: messaging.TopicOrderUpdates, Payload: "abc"})

	o, err := st.Orders.Get(ctx, "o-4")
	require.NoError(t, err)
	assert.Equal(t, store.OrderPending, o.Status)
	assert.Empty(t, bus.messages())
}

func TestUpdateProjectionIsLastWriterWins(t *testing.T) {
	st, _, svc := fixture(t, false)
	ctx := context.Background()
	createOrder(t, st, "o-5", "Widget A", 1)

	// Applied in processing order; the later message wins even though it
	// carries an earlier lifecycle state.
	svc.Handle(ctx, messaging.Message{Topic: messaging.TopicOrderUpdates, Payload: "o-5:SHIPPED"})
	svc.Handle(ctx, messaging.Message{Topic: messaging.TopicOrderUpdates, Payload: "o-5:INVENTORY_RESERVED"})

	o, err := st.Orders.Get(ctx, "o-5")
	require.NoError(t, err)
	assert.Equal(t, store.OrderInventoryReserved, o.Status)
}

func TestAtomicReserveNeverOversellsConcurrently(t *testing.T) {
	st, bus, svc := fixture(t, false)
	ctx := context.Background()
	require.NoError(t, st.Inventory.Upsert(ctx, "Gadget X", 10))
	for i := range 30 {
		createOrder(t, st, orderID(i), "Gadget X", 1)
	}

	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Handle(ctx, messaging.Message{Topic: messaging.TopicOrders, Payload: orderID(i)})
		}()
	}
	wg.Wait()

	qty, err := st.Inventory.Level(ctx, "Gadget X")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, qty, 0)
	assert.Equal(t, 0, qty)

	reserved := 0
	for _, m := range bus.messages() {
		if m.Topic == messaging.TopicInventoryReserved {
			reserved++
		}
	}
	assert.Equal(t, 10, reserved, "exactly the available stock is reserved")
}

// gatedInventory widens the read-then-write window: Level does not
// return until both readers have read, guaranteeing the stale-read
// interleaving.
type gatedInventory struct {
	store.InventoryRepository
	gate *sync.WaitGroup
}

func (g *gatedInventory) Level(ctx context.Context, product string) (int, error) {
	qty, err := g.InventoryRepository.Level(ctx, product)
	g.gate.Done()
	g.gate.Wait()
	return qty, err
}

// The legacy read-then-write mode reproduces the historical race: two
// reservations that jointly oversell both pass the stale check and drive
// the level negative. This is the documented defect the conditional
// update exists to close.
func TestUnsafeReserveOversellsOnStaleRead(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, st.Inventory.Upsert(ctx, "Widget B", 1))

	var gate sync.WaitGroup
	gate.Add(2)
	inv := &gatedInventory{InventoryRepository: st.Inventory, gate: &gate}
	bus := &recordingBus{}
	svc := NewService(st.Orders, inv, bus, nil, nil, nil, true)

	var done sync.WaitGroup
	for i := range 2 {
		createOrder(t, st, orderID(100+i), "Widget B", 1)
		done.Add(1)
		go func() {
			defer done.Done()
			svc.Handle(ctx, messaging.Message{Topic: messaging.TopicOrders, Payload: orderID(100 + i)})
		}()
	}
	done.Wait()

	qty, err := st.Inventory.Level(ctx, "Widget B")
	require.NoError(t, err)
	assert.Equal(t, -1, qty, "both reservations won on a stale read")

	reserved := 0
	for _, m := range bus.messages() {
		if m.Topic == messaging.TopicInventoryReserved {
			reserved++
		}
	}
	assert.Equal(t, 2, reserved)
}

func orderID(i int) string {
	return "o-conc-" + string(rune('A'+i%26)) + string(rune('a'+(i/26)%26))
}
