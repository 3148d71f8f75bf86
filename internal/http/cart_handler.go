package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/cart"
	"github.com/okoshkin/go_market/internal/coupon"
	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/pricing"
)

type CartHandler struct {
	carts    *cart.Service
	coupons  *coupon.Validator
	currency string
	timeout  time.Duration
}

func NewCartHandler(carts *cart.Service, coupons *coupon.Validator, currency string, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:    carts,
		coupons:  coupons,
		currency: currency,
		timeout:  timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID int64   `json:"product_id"`
	VendorID  string  `json:"vendor_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	ListPrice float64 `json:"list_price,omitempty"`
	Quantity  int     `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type ApplyCouponRequestDTO struct {
	Code string `json:"code"`
}

type CartViewDTO struct {
	Groups        []domain.VendorGroup  `json:"groups"`
	Breakdown     domain.PriceBreakdown `json:"breakdown"`
	Coupon        *domain.AppliedCoupon `json:"coupon,omitempty"`
	CouponRemoved string                `json:"coupon_removed,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	applied, rejection, err := h.resolveCoupon(ctx, userID, r.URL.Query().Get("coupon"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	view, err := h.carts.View(ctx, userID, applied)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	dto := toCartViewDTO(view)
	if dto.CouponRemoved == "" && rejection != "" {
		dto.CouponRemoved = rejection
	}
	respondJSON(w, http.StatusOK, dto)
}

// resolveCoupon turns a coupon code from the query string into the full
// applied-coupon descriptor. A code that no longer qualifies degrades to
// a removal message on the view instead of failing the read.
func (h *CartHandler) resolveCoupon(ctx context.Context, userID, code string) (*domain.AppliedCoupon, string, error) {
	if code == "" {
		return nil, "", nil
	}
	current, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	snap := pricing.Snapshot(current.Lines, h.currency)
	snap.CapturedAt = time.Now()

	applied, err := h.coupons.Validate(ctx, code, snap, nil)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) || errors.Is(err, coupon.ErrExpired) ||
			errors.Is(err, coupon.ErrBelowMinimumSubtotal) || errors.Is(err, coupon.ErrVendorNotEligible) {
			return nil, coupon.Removal{Code: code, Reason: err}.String(), nil
		}
		return nil, "", err
	}
	return applied, "", nil
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.VendorID == "" {
		respondError(w, http.StatusBadRequest, "invalid_vendor_id", "vendor_id is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	updated, err := h.carts.AddItem(ctx, userID, domain.CartLine{
		ID:        uuid.NewString(),
		ProductID: req.ProductID,
		VendorID:  req.VendorID,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		ListPrice: req.ListPrice,
		Quantity:  req.Quantity,
		Available: true,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, updated)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	lineID := chi.URLParam(r, "line_id")
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	// zero and below removes the line
	updated, err := h.carts.UpdateQuantity(ctx, userID, lineID, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	updated, err := h.carts.RemoveItem(ctx, userID, chi.URLParam(r, "line_id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if err := h.carts.Clear(ctx, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

// ApplyCoupon validates a code against the current cart and returns the
// priced view with the coupon applied. The client passes the applied
// coupon back on subsequent reads via the coupon query parameter; the
// same parameter here lets the validator reject a re-apply of it.
func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req ApplyCouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "coupon code is required")
		return
	}

	current, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	snap := pricing.Snapshot(current.Lines, h.currency)
	snap.CapturedAt = time.Now()

	var alreadyApplied *domain.AppliedCoupon
	if cur := r.URL.Query().Get("coupon"); cur != "" {
		alreadyApplied = &domain.AppliedCoupon{Code: cur}
	}

	applied, err := h.coupons.Validate(ctx, req.Code, snap, alreadyApplied)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	view, err := h.carts.View(ctx, userID, applied)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartViewDTO(view))
}

func toCartViewDTO(view *cart.View) CartViewDTO {
	dto := CartViewDTO{
		Groups:    view.Groups,
		Breakdown: view.Breakdown,
		Coupon:    view.Coupon,
	}
	if view.Removal != nil {
		dto.CouponRemoved = view.Removal.String()
	}
	return dto
}
