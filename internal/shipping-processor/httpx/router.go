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
	r.Route("/api/shipments", func(r chi.Router) {
		r.Post("/", handler.CreateShipment)
		r.Get("/", handler.ListShipments)
		r.Get("/{id}", handler.GetShipment)
		r.Put("/{id}/ship", handler.ShipShipment)
		r.Put("/{id}/deliver", handler.DeliverShipment)
	})
	return r
}
