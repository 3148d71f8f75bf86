package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/okoshkin/go_market/internal/cart"
	"github.com/okoshkin/go_market/internal/checkout"
	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/pricing"
)

type CheckoutHandler struct {
	wizard    *checkout.Coordinator
	submitter *checkout.Submitter
	carts     *cart.Service
	addresses *checkout.AddressBook
	currency  string
	timeout   time.Duration
}

func NewCheckoutHandler(
	wizard *checkout.Coordinator,
	submitter *checkout.Submitter,
	carts *cart.Service,
	addresses *checkout.AddressBook,
	currency string,
	timeout time.Duration,
) *CheckoutHandler {
	return &CheckoutHandler{
		wizard:    wizard,
		submitter: submitter,
		carts:     carts,
		addresses: addresses,
		currency:  currency,
		timeout:   timeout,
	}
}

type StartCheckoutRequestDTO struct {
	CouponCode string `json:"coupon_code,omitempty"`
}

type SelectAddressRequestDTO struct {
	AddressID string `json:"address_id"`
}

type SelectPaymentRequestDTO struct {
	Method domain.PaymentMethod `json:"method"`
	Phone  string               `json:"phone"`
	Email  string               `json:"email,omitempty"`
}

type CommentRequestDTO struct {
	Comment string `json:"comment"`
}

// Start freezes the current cart into a snapshot and opens the wizard.
func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req StartCheckoutRequestDTO
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // body is optional
	}

	current, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	snap := pricing.Snapshot(current.Lines, h.currency)
	if len(snap.Lines) == 0 {
		respondError(w, http.StatusBadRequest, "empty_cart", "cannot start checkout with an empty cart")
		return
	}

	session, err := h.wizard.Start(ctx, userID, snap, req.CouponCode)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, err := h.wizard.Get(ctx, chi.URLParam(r, "token"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *CheckoutHandler) SelectAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SelectAddressRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AddressID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "address_id is required")
		return
	}

	session, err := h.wizard.SelectAddress(ctx, chi.URLParam(r, "token"), req.AddressID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *CheckoutHandler) SelectPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SelectPaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Method != domain.PaymentMethodCard && req.Method != domain.PaymentMethodCashOnDelivery {
		respondError(w, http.StatusBadRequest, "invalid_method", "unknown payment method")
		return
	}

	session, err := h.wizard.SelectPayment(ctx, chi.URLParam(r, "token"), req.Method, req.Phone, req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *CheckoutHandler) SetComment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CommentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	session, err := h.wizard.SetComment(ctx, chi.URLParam(r, "token"), req.Comment)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *CheckoutHandler) Next(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, err := h.wizard.Next(ctx, chi.URLParam(r, "token"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, err := h.wizard.Back(ctx, chi.URLParam(r, "token"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

type GroupResultDTO struct {
	VendorID string                 `json:"vendor_id"`
	Order    *domain.Order          `json:"order,omitempty"`
	Payment  *domain.PaymentAttempt `json:"payment,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

type SubmitResponseDTO struct {
	Session *domain.CheckoutSession `json:"session"`
	Groups  []GroupResultDTO        `json:"groups"`
}

func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.submitter.Submit(ctx, chi.URLParam(r, "token"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	dto := SubmitResponseDTO{Session: res.Session}
	status := http.StatusCreated
	for _, g := range res.Groups {
		out := GroupResultDTO{VendorID: g.VendorID, Order: g.Order, Payment: g.Attempt}
		if g.Err != nil {
			out.Error = g.Err.Error()
			status = http.StatusMultiStatus
		}
		dto.Groups = append(dto.Groups, out)
	}
	respondJSON(w, status, dto)
}

// Address book endpoints.

func (h *CheckoutHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	book, err := h.addresses.List(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, book)
}

func (h *CheckoutHandler) AddAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var addr domain.DeliveryAddress
	if err := json.NewDecoder(r.Body).Decode(&addr); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	saved, err := h.addresses.Add(ctx, userID, addr)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

func (h *CheckoutHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var addr domain.DeliveryAddress
	if err := json.NewDecoder(r.Body).Decode(&addr); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	addr.ID = chi.URLParam(r, "address_id")

	saved, err := h.addresses.Update(ctx, userID, addr)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (h *CheckoutHandler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if err := h.addresses.Delete(ctx, userID, chi.URLParam(r, "address_id")); err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *CheckoutHandler) SetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if err := h.addresses.SetDefault(ctx, userID, chi.URLParam(r, "address_id")); err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
