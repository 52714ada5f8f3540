// Package handlers provides HTTP handlers for order placement,
// history, and reconciliation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
	"github.com/ravitejakamalapuram/copytradepro/internal/modules/orders"
	"github.com/ravitejakamalapuram/copytradepro/internal/taxonomy"
)

// OrderHandlers contains HTTP handlers for the orders API
type OrderHandlers struct {
	service *orders.Service
	log     zerolog.Logger
}

// NewOrderHandlers creates a new order handlers instance
func NewOrderHandlers(service *orders.Service, log zerolog.Logger) *OrderHandlers {
	return &OrderHandlers{
		service: service,
		log:     log.With().Str("handler", "orders").Logger(),
	}
}

// HandlePlaceOrder fans an order out across the target accounts
// POST /api/orders
func (h *OrderHandlers) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.service.PlaceBatch(r.Context(), req)
	if err != nil {
		// PlaceBatch only errors on validation; fan-out failures are
		// per-outcome
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if result.AllFailed() {
		status = http.StatusBadGateway
	} else if !result.AllSucceeded() {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

// HandleGetHistory returns recent cached orders
// GET /api/orders
func (h *OrderHandlers) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil {
			limit = parsed
		}
	}

	var (
		history []orders.CachedOrder
		err     error
	)
	if accountID := r.URL.Query().Get("accountId"); accountID != "" {
		history, err = h.service.ByAccount(r.Context(), accountID, limit)
	} else {
		history, err = h.service.History(r.Context(), limit)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get order history")
		http.Error(w, "Failed to get order history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": history})
}

// HandleGetBatch returns the outcomes of one fan-out
// GET /api/orders/batch/{batchID}
func (h *OrderHandlers) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	batch, err := h.service.Batch(r.Context(), batchID)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to get batch")
		http.Error(w, "Failed to get batch", http.StatusInternalServerError)
		return
	}
	if len(batch) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"batchId": batchID, "orders": batch})
}

// HandleReconcile triggers a reconciliation sweep
// POST /api/orders/reconcile
func (h *OrderHandlers) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Reconciliation sweep failed")
		http.Error(w, "Reconciliation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleReconcileOrder refreshes one cached order against the broker
// POST /api/orders/{orderID}/reconcile
func (h *OrderHandlers) HandleReconcileOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	result, err := h.service.ReconcileOrder(r.Context(), orderID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, orders.ErrOrderNotPlaced):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order was never placed on the broker"})
	default:
		h.log.Error().Err(err).Int64("order_id", orderID).Msg("Reconciliation failed")
		entry := taxonomy.Classify(err)
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":            entry.UserMessage,
			"kind":             entry.Kind,
			"suggestedActions": entry.SuggestedActions,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
