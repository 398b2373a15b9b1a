// Package httpx exposes the shipping processor REST surface, including
// the POST /api/shipments endpoint the shipping receiver calls
// synchronously.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/chaos"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/httpx"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
	"github.com/jcmexdev/fabrik-saga/internal/shipping-processor/app"
)

type CreateShipmentRequest struct {
	OrderID string `json:"orderId"`
}

type ShipmentResponse struct {
	ID             string `json:"id"`
	OrderID        string `json:"orderId"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

func toShipmentResponse(s *store.Shipment) ShipmentResponse {
	resp := ShipmentResponse{
		ID:             s.ID,
		OrderID:        s.OrderID,
		Carrier:        s.Carrier,
		TrackingNumber: s.TrackingNumber,
		Status:         s.Status,
	}
	if !s.CreatedAt.IsZero() {
		resp.CreatedAt = s.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Handler exposes the shipment endpoints.
type Handler struct {
	svc *app.Service
}

func NewHandler(svc *app.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	var req CreateShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.OrderID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "order_id_required", "orderId is required")
		return
	}

	shipment, err := h.svc.Create(r.Context(), req.OrderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toShipmentResponse(shipment))
}

func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	shipment, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toShipmentResponse(shipment))
}

func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	shipments, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]ShipmentResponse, len(shipments))
	for i := range shipments {
		out[i] = toShipmentResponse(&shipments[i])
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) ShipShipment(w http.ResponseWriter, r *http.Request) {
	shipment, err := h.svc.Ship(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toShipmentResponse(shipment))
}

func (h *Handler) DeliverShipment(w http.ResponseWriter, r *http.Request) {
	shipment, err := h.svc.Deliver(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toShipmentResponse(shipment))
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "shipment_not_found", "Shipment not found")
	case errors.Is(err, store.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, chaos.ErrInjectedLoad):
		httpx.WriteError(w, http.StatusServiceUnavailable, "injected_load", err.Error())
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "storage_error", err.Error())
	}
}
