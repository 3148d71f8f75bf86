package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okoshkin/go_market/internal/domain"
)

// Rejection reasons. Validation failures are recoverable user input, not
// logged as failures.
var (
	ErrNotFound             = errors.New("coupon not found")
	ErrExpired              = errors.New("coupon expired")
	ErrBelowMinimumSubtotal = errors.New("cart subtotal below coupon minimum")
	ErrAlreadyApplied       = errors.New("coupon already applied")
	ErrVendorNotEligible    = errors.New("no eligible vendor items in cart")
)

// Store looks coupon codes up. Consumers define the interface, not the
// implementation.
type Store interface {
	Find(ctx context.Context, code string) (*domain.Coupon, error)
}

type Validator struct {
	store Store
	now   func() time.Time
}

func NewValidator(store Store) *Validator {
	return &Validator{store: store, now: time.Now}
}

// Validate checks code against the cart snapshot and returns the
// accepted-discount descriptor, or one of the enumerated rejections.
// applied is the coupon already attached to the checkout, if any.
func (v *Validator) Validate(ctx context.Context, code string, snap domain.CartSnapshot, applied *domain.AppliedCoupon) (*domain.AppliedCoupon, error) {
	if applied != nil && applied.Code == code {
		return nil, ErrAlreadyApplied
	}

	c, err := v.store.Find(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("coupon lookup: %w", err)
	}

	if err := v.check(c, snap); err != nil {
		return nil, err
	}

	return &domain.AppliedCoupon{
		Code:         c.Code,
		Kind:         c.Kind,
		Value:        c.Value,
		FreeDelivery: c.Kind == domain.CouponKindFreeDelivery,
	}, nil
}

// Removal is the distinguishable "coupon removed: <reason>" signal sent
// when a previously applied coupon becomes invalid after a cart change.
type Removal struct {
	Code   string
	Reason error
}

func (r Removal) String() string {
	return fmt.Sprintf("coupon removed: %v", r.Reason)
}

// Revalidate re-runs validation for an already applied coupon against a
// changed cart. A coupon that no longer qualifies is detached and
// reported, never silently reflected in a changed total.
func (v *Validator) Revalidate(ctx context.Context, applied *domain.AppliedCoupon, snap domain.CartSnapshot) (*domain.AppliedCoupon, *Removal, error) {
	if applied == nil {
		return nil, nil, nil
	}

	c, err := v.store.Find(ctx, applied.Code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &Removal{Code: applied.Code, Reason: ErrNotFound}, nil
		}
		return nil, nil, fmt.Errorf("coupon lookup: %w", err)
	}

	if err := v.check(c, snap); err != nil {
		return nil, &Removal{Code: applied.Code, Reason: err}, nil
	}
	return applied, nil, nil
}

func (v *Validator) check(c *domain.Coupon, snap domain.CartSnapshot) error {
	if c.ExpiresAt != nil && v.now().After(*c.ExpiresAt) {
		return ErrExpired
	}
	if snap.Subtotal < c.MinSubtotal {
		return ErrBelowMinimumSubtotal
	}
	if c.VendorID != "" && !snapshotHasVendor(snap, c.VendorID) {
		return ErrVendorNotEligible
	}
	return nil
}

func snapshotHasVendor(snap domain.CartSnapshot, vendorID string) bool {
	for _, l := range snap.Lines {
		if l.VendorID == vendorID && l.Available {
			return true
		}
	}
	return false
}

// MemoryStore is a map-backed Store used in tests and local wiring.
type MemoryStore struct {
	coupons map[string]domain.Coupon
}

func NewMemoryStore(coupons ...domain.Coupon) *MemoryStore {
	m := &MemoryStore{coupons: make(map[string]domain.Coupon, len(coupons))}
	for _, c := range coupons {
		m.coupons[c.Code] = c
	}
	return m
}

func (m *MemoryStore) Find(_ context.Context, code string) (*domain.Coupon, error) {
	c, ok := m.coupons[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}
