package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all order routes
func (h *OrderHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.HandleGetHistory)
		r.Post("/", h.HandlePlaceOrder)
		r.Get("/batch/{batchID}", h.HandleGetBatch)
		r.Post("/reconcile", h.HandleReconcile)
		r.Post("/{orderID}/reconcile", h.HandleReconcileOrder)
	})
}
