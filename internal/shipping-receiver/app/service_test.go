package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/chaos"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/messaging"
)

type recordingCreator struct {
	mu     sync.Mutex
	orders []string
	err    error
}

func (c *recordingCreator) CreateShipment(_ context.Context, orderID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.orders = append(c.orders, orderID)
	return "shipment-" + orderID, nil
}

func (c *recordingCreator) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.orders...)
}

func TestHandleReservedRequestsShipment(t *testing.T) {
	creator := &recordingCreator{}
	svc := NewService(creator, nil)

	svc.Handle(context.Background(), messaging.Message{
		Topic:   messaging.TopicInventoryReserved,
		Payload: "order-1:RESERVED",
	})

	assert.Equal(t, []string{"order-1"}, creator.seen())
}

func TestHandleIgnoresNonReservedOutcomes(t *testing.T) {
	creator := &recordingCreator{}
	svc := NewService(creator, nil)

	for _, payload := range []string{"order-1:OUT_OF_STOCK", "order-1:CANCELLED", "order-1:reserved"} {
		svc.Handle(context.Background(), messaging.Message{
			Topic:   messaging.TopicInventoryReserved,
			Payload: payload,
		})
	}

	assert.Empty(t, creator.seen())
}

func TestHandleDropsMalformedPayloads(t *testing.T) {
	creator := &recordingCreator{}
	svc := NewService(creator, nil)

	for _, payload := range []string{"", "order-1", ":RESERVED", "order-1:"} {
		svc.Handle(context.Background(), messaging.Message{
			Topic:   messaging.TopicInventoryReserved,
			Payload: payload,
		})
	}

	assert.Empty(t, creator.seen())
}

func TestHandleSwallowsClientErrors(t *testing.T) {
	creator := &recordingCreator{err: ErrProcessorTimeout}
	svc := NewService(creator, nil)

	// Must not panic and must not retry inline; redelivery owns retries.
	svc.Handle(context.Background(), messaging.Message{
		Topic:   messaging.TopicInventoryReserved,
		Payload: "order-1:RESERVED",
	})
	assert.Empty(t, creator.seen())
}

func TestHandleGatesOnMessageSlowdownOnly(t *testing.T) {
	creator := &recordingCreator{}

	// The service mechanism belongs to request entry points; consumption
	// must ignore it even at rate 100.
	svc := NewService(creator, chaos.New(chaos.Config{ServiceRate: "100", ServiceDelay: "300"}))
	start := time.Now()
	svc.Handle(context.Background(), messaging.Message{
		Topic:   messaging.TopicInventoryReserved,
		Payload: "order-1:RESERVED",
	})
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, []string{"order-1"}, creator.seen())

	svc = NewService(creator, chaos.New(chaos.Config{MessageRate: "100", MessageDelay: "40"}))
	start = time.Now()
	svc.Handle(context.Background(), messaging.Message{
		Topic:   messaging.TopicInventoryReserved,
		Payload: "order-2:RESERVED",
	})
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestProcessorClientCreateShipment(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/shipments", r.URL.Path)
		buf := make([]byte, 256)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"ship-42","orderId":"order-42","status":"CREATED"}`))
	}))
	defer srv.Close()

	client := NewProcessorClient(srv.URL)
	id, err := client.CreateShipment(context.Background(), "order-42")
	require.NoError(t, err)
	assert.Equal(t, "ship-42", id)
	assert.JSONEq(t, `{"orderId":"order-42"}`, gotBody)
}

func TestProcessorClientNonCreatedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"injected_load"}`))
	}))
	defer srv.Close()

	client := NewProcessorClient(srv.URL)
	_, err := client.CreateShipment(context.Background(), "order-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.NotErrorIs(t, err, ErrProcessorTimeout)
}

func TestProcessorClientTimeoutClassified(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewProcessorClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.CreateShipment(ctx, "order-1")
	assert.ErrorIs(t, err, ErrProcessorTimeout)
}
