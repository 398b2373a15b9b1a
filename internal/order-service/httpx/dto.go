package httpx

import (
	"time"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
)

// CreateOrderRequest mirrors the historical wire format; every field is
// optional and defaulted server-side.
type CreateOrderRequest struct {
	CustomerName  string  `json:"customerName"`
	CustomerEmail string  `json:"customerEmail"`
	Product       string  `json:"product"`
	Quantity      int     `json:"quantity"`
	Price         float64 `json:"price"`
}

type OrderResponse struct {
	ID            string  `json:"id"`
	CustomerName  string  `json:"customerName"`
	CustomerEmail string  `json:"customerEmail"`
	Product       string  `json:"product"`
	Quantity      int     `json:"quantity"`
	Price         float64 `json:"price"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"createdAt,omitempty"`
}

type CancelResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func toOrderResponse(o *store.Order) OrderResponse {
	resp := OrderResponse{
		ID:            o.ID,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Product:       o.Product,
		Quantity:      o.Quantity,
		Price:         o.Price.InexactFloat64(),
		Status:        o.Status,
	}
	if !o.CreatedAt.IsZero() {
		resp.CreatedAt = o.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toOrderResponses(orders []store.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	return out
}
