package app

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
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

func TestCreatePersistsAndPublishes(t *testing.T) {
	st := memory.NewStore()
	bus := &recordingBus{}
	svc := NewService(st.Orders, bus, nil, nil, nil)

	order, err := svc.Create(context.Background(), CreateParams{
		CustomerName: "Ada", Product: "Widget A", Quantity: 3,
		Price: decimal.NewFromFloat(19.99),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, store.OrderPending, order.Status)

	saved, err := st.Orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget A", saved.Product)

	msgs := bus.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, messaging.TopicOrders, msgs[0].Topic)
	assert.Equal(t, order.ID, msgs[0].Payload)
	assert.Equal(t, messaging.TopicOrderUpdates, msgs[1].Topic)
	assert.Equal(t, order.ID+":CREATED", msgs[1].Payload)
}

func TestCreateAppliesDefaults(t *testing.T) {
	st := memory.NewStore()
	svc := NewService(st.Orders, &recordingBus{}, nil, nil, nil)

	order, err := svc.Create(context.Background(), CreateParams{})
	require.NoError(t, err)
	assert.Equal(t, DefaultCustomerName, order.CustomerName)
	assert.Equal(t, DefaultCustomerEmail, order.CustomerEmail)
	assert.Equal(t, DefaultProduct, order.Product)
	assert.Equal(t, DefaultQuantity, order.Quantity)
	assert.True(t, order.Price.Equal(DefaultPrice))
}

func TestCancelUnknownOrderPublishesNothing(t *testing.T) {
	st := memory.NewStore()
	bus := &recordingBus{}
	svc := NewService(st.Orders, bus, nil, nil, nil)

	err := svc.Cancel(context.Background(), "no-such-order")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, bus.messages())
}

func TestCancelPublishesUpdate(t *testing.T) {
	st := memory.NewStore()
	bus := &recordingBus{}
	svc := NewService(st.Orders, bus, nil, nil, nil)

	order, err := svc.Create(context.Background(), CreateParams{})
	require.NoError(t, err)
	bus.sent = nil

	require.NoError(t, svc.Cancel(context.Background(), order.ID))

	saved, err := st.Orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, store.OrderCancelled, saved.Status)

	msgs := bus.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, messaging.TopicOrderUpdates, msgs[0].Topic)
	assert.Equal(t, order.ID+":CANCELLED", msgs[0].Payload)
}
