package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrProcessorTimeout marks a shipment request that exceeded the client
// deadline. The processor may still have created the shipment; the
// receiver never compensates, redelivery sorts it out.
var ErrProcessorTimeout = errors.New("shipping-receiver: shipment request timed out")

const requestTimeout = 60 * time.Second

// ProcessorClient calls the shipping processor's shipment endpoint.
type ProcessorClient struct {
	baseURL string
	client  *http.Client
}

func NewProcessorClient(baseURL string) *ProcessorClient {
	return &ProcessorClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   requestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type createShipmentRequest struct {
	OrderID string `json:"orderId"`
}

// CreateShipment posts the order to the processor and returns the new
// shipment id. Timeouts are classified as ErrProcessorTimeout so the
// caller can log them apart from hard transport failures.
func (c *ProcessorClient) CreateShipment(ctx context.Context, orderID string) (string, error) {
	body, err := json.Marshal(createShipmentRequest{OrderID: orderID})
	if err != nil {
		return "", fmt.Errorf("shipping-receiver: encode request for order %q: %w", orderID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/shipments", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("shipping-receiver: build request for order %q: %w", orderID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fmt.Errorf("%w: order %q", ErrProcessorTimeout, orderID)
		}
		return "", fmt.Errorf("shipping-receiver: shipment request for order %q: %w", orderID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("shipping-receiver: processor returned %d for order %q: %s", resp.StatusCode, orderID, snippet)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("shipping-receiver: decode response for order %q: %w", orderID, err)
	}
	return out.ID, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
