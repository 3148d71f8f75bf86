package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/order"
	"github.com/okoshkin/go_market/internal/payment"
	"go.uber.org/zap"
)

// WebhookHandler receives asynchronous provider callbacks for payments
// that did not settle inline.
type WebhookHandler struct {
	payments *payment.Coordinator
	orders   *order.Service
	logger   *zap.Logger
	timeout  time.Duration
}

func NewWebhookHandler(payments *payment.Coordinator, orders *order.Service, logger *zap.Logger, timeout time.Duration) *WebhookHandler {
	return &WebhookHandler{
		payments: payments,
		orders:   orders,
		logger:   logger,
		timeout:  timeout,
	}
}

type PaymentWebhookDTO struct {
	ProviderRef   string `json:"provider_ref"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func (h *WebhookHandler) PaymentResult(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var dto PaymentWebhookDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil || dto.ProviderRef == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "provider_ref is required")
		return
	}

	status := domain.PaymentStatus(dto.Status)
	switch status {
	case domain.PaymentStatusAuthorized, domain.PaymentStatusCaptured, domain.PaymentStatusDeclined:
	default:
		respondError(w, http.StatusBadRequest, "invalid_status", "unknown payment status")
		return
	}

	attempt, err := h.payments.Confirm(ctx, payment.Result{
		Status:        status,
		ProviderRef:   dto.ProviderRef,
		FailureReason: dto.FailureReason,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// an authorization settling late still confirms its order
	if attempt.Status == domain.PaymentStatusAuthorized {
		if _, err := h.orders.Confirm(ctx, attempt.OrderID, "payment authorized via webhook"); err != nil {
			h.logger.Warn("confirm order from webhook",
				zap.String("order_id", attempt.OrderID.String()), zap.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, attempt)
}
