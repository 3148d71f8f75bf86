package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okoshkin/go_market/internal/cart"
	"github.com/okoshkin/go_market/internal/checkout"
	"github.com/okoshkin/go_market/internal/coupon"
	"github.com/okoshkin/go_market/internal/order"
	"github.com/okoshkin/go_market/internal/payment"
	"github.com/okoshkin/go_market/internal/repository"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleServiceError maps domain errors onto HTTP statuses. Validation
// failures are 400, missing things 404, state conflicts 409, payment
// declines 402.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrItemUnavailable),
		errors.Is(err, checkout.ErrEmptyAddress),
		errors.Is(err, checkout.ErrAddressRequired),
		errors.Is(err, checkout.ErrPaymentDetailsRequired),
		errors.Is(err, checkout.ErrEmptyCheckout),
		errors.Is(err, checkout.ErrAtFirstStep),
		errors.Is(err, checkout.ErrAtLastStep),
		errors.Is(err, order.ErrReasonRequired),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrBelowMinimumSubtotal),
		errors.Is(err, coupon.ErrAlreadyApplied),
		errors.Is(err, coupon.ErrVendorNotEligible):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())

	case errors.Is(err, order.ErrNotOwned):
		respondError(w, http.StatusForbidden, "forbidden", err.Error())

	case errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, checkout.ErrAddressNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, order.ErrNothingToReorder),
		errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrAttemptNotFound),
		errors.Is(err, repository.ErrRefundNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, checkout.ErrSessionClosed),
		errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, order.ErrRefundNotAllowed),
		errors.Is(err, order.ErrRefundAlreadyOpen),
		errors.Is(err, order.ErrIllegalTransition),
		errors.Is(err, payment.ErrAlreadyCompensated),
		errors.Is(err, payment.ErrIllegalTransition),
		errors.Is(err, repository.ErrDuplicateSubmission):
		respondError(w, http.StatusConflict, "conflict", err.Error())

	case errors.Is(err, payment.ErrProviderTimeout):
		respondError(w, http.StatusGatewayTimeout, "provider_timeout", err.Error())

	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
