package domain

import "time"

type CouponKind string

const (
	CouponKindPercentage   CouponKind = "PERCENTAGE"
	CouponKindFixed        CouponKind = "FIXED"
	CouponKindFreeDelivery CouponKind = "FREE_DELIVERY"
)

// Coupon is the catalog definition of a promo code. VendorID, when set,
// restricts the coupon to carts containing that vendor's items.
type Coupon struct {
	Code        string     `json:"code"`
	Kind        CouponKind `json:"kind"`
	Value       float64    `json:"value"` // percent for PERCENTAGE, amount for FIXED
	MinSubtotal float64    `json:"min_subtotal,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	VendorID    string     `json:"vendor_id,omitempty"`
}

// AppliedCoupon is the accepted-discount descriptor attached to an
// in-progress checkout. It is deliberately not stored on the cart: any
// cart change forces revalidation against the new snapshot.
type AppliedCoupon struct {
	Code         string     `json:"code"`
	Kind         CouponKind `json:"kind"`
	Value        float64    `json:"value"`
	FreeDelivery bool       `json:"free_delivery"`
}
