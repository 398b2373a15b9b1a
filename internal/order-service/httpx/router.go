package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/httpx"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", httpx.Health)
	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", handler.CreateOrder)
		r.Get("/", handler.ListOrders)
		r.Get("/recent", handler.RecentOrders)
		r.Get("/stats", handler.OrderStats)
		r.Get("/status/{status}", handler.OrdersByStatus)
		r.Get("/{id}", handler.GetOrder)
		r.Put("/{id}/cancel", handler.CancelOrder)
	})
	return r
}
