// Package httpx exposes the inventory service's read-only REST surface.
package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/fabrik-saga/internal/inventory-service/app"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/httpx"
)

type levelResponse struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

func NewRouter(svc *app.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", httpx.Health)
	r.Get("/api/inventory", func(w http.ResponseWriter, req *http.Request) {
		levels, err := svc.Levels(req.Context())
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "storage_error", err.Error())
			return
		}
		out := make([]levelResponse, len(levels))
		for i, lvl := range levels {
			out[i] = levelResponse{Product: lvl.Product, Quantity: lvl.Quantity}
		}
		httpx.WriteJSON(w, http.StatusOK, out)
	})
	return r
}
