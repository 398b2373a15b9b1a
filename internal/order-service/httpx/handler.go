package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/fabrik-saga/internal/order-service/app"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/chaos"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/httpx"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/store"
)

// Handler exposes the order service REST surface.
type Handler struct {
	svc *app.Service
}

func NewHandler(svc *app.Service) *Handler {
	return &Handler{svc: svc}
}

// CreateOrder accepts an optionally-populated order body, persists the
// order and kicks off the choreography.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	order, err := h.svc.Create(r.Context(), app.CreateParams{
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Product:       req.Product,
		Quantity:      req.Quantity,
		Price:         decimal.NewFromFloat(req.Price),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toOrderResponse(order))
}

// CancelOrder flips the order to CANCELLED; unknown ids are 404 and no
// event is published.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "order_not_found", "Order not found")
			return
		}
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, CancelResponse{ID: id, Status: store.OrderCancelled})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "order_not_found", "Order not found")
			return
		}
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) RecentOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Recent(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) OrdersByStatus(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListByStatus(r.Context(), chi.URLParam(r, "status"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) OrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

// writeServiceError maps failures onto the REST contract: injected load
// is surfaced distinctly from ordinary storage trouble.
func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, chaos.ErrInjectedLoad) {
		httpx.WriteError(w, http.StatusServiceUnavailable, "injected_load", err.Error())
		return
	}
	httpx.WriteError(w, http.StatusInternalServerError, "storage_error", err.Error())
}
