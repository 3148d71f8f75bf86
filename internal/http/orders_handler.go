package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/cart"
	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/order"
)

type OrdersHandler struct {
	orders   *order.Service
	carts    *cart.Service
	catalog  order.AvailabilityChecker
	invoices order.InvoiceRenderer
	timeout  time.Duration
}

func NewOrdersHandler(orders *order.Service, carts *cart.Service, catalog order.AvailabilityChecker, invoices order.InvoiceRenderer, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:   orders,
		carts:    carts,
		catalog:  catalog,
		invoices: invoices,
		timeout:  timeout,
	}
}

type CancelOrderRequestDTO struct {
	Reason string `json:"reason"`
}

type RefundRequestDTO struct {
	Reason string `json:"reason"`
}

func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	filter, ok := parseOrderFilter(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_filter", "unknown status or malformed date")
		return
	}

	orders, err := h.orders.List(ctx, userID, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, orderID, ok := h.identify(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetForUser(ctx, userID, orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, orderID, ok := h.identify(w, r)
	if !ok {
		return
	}

	var req CancelOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	cancelled, err := h.orders.Cancel(ctx, userID, orderID, req.Reason)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cancelled)
}

func (h *OrdersHandler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, orderID, ok := h.identify(w, r)
	if !ok {
		return
	}

	var req RefundRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	refund, err := h.orders.RequestRefund(ctx, userID, orderID, req.Reason)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, refund)
}

func (h *OrdersHandler) Invoice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, orderID, ok := h.identify(w, r)
	if !ok {
		return
	}

	body, contentType, err := h.orders.Invoice(ctx, userID, orderID, h.invoices)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=invoice.txt")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// Reorder puts a past order's still-available items back into the cart
// and reports what could not come along.
func (h *OrdersHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, orderID, ok := h.identify(w, r)
	if !ok {
		return
	}

	res, err := h.orders.Reorder(ctx, userID, orderID, h.catalog)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	for _, line := range res.Lines {
		if _, err := h.carts.AddItem(ctx, userID, line); err != nil {
			handleServiceError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) identify(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return "", uuid.Nil, false
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return "", uuid.Nil, false
	}
	return userID, orderID, true
}

func parseOrderFilter(r *http.Request) (domain.OrderFilter, bool) {
	var f domain.OrderFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return f, false
		}
		f.Status = status
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, false
		}
		f.From = &t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, false
		}
		f.To = &t
	}
	return f, true
}
