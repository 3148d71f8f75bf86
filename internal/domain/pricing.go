package domain

// PriceBreakdown decomposes a cart or order total. It is recomputed from
// its inputs, never mutated in place.
//
// Total == Subtotal - ItemDiscountTotal - CouponDiscount + DeliveryFee,
// and Total >= 0 (the coupon discount is clamped, see pricing package).
type PriceBreakdown struct {
	Subtotal          float64 `json:"subtotal"`
	ItemDiscountTotal float64 `json:"item_discount_total"`
	CouponDiscount    float64 `json:"coupon_discount"`
	DeliveryFee       float64 `json:"delivery_fee"`
	Total             float64 `json:"total"`
}

// DeliveryRule is a step function of the payable item subtotal: free at or
// above FreeThreshold, otherwise a flat Fee.
type DeliveryRule struct {
	FreeThreshold float64 `json:"free_threshold"`
	Fee           float64 `json:"fee"`
}

func (r DeliveryRule) FeeFor(payableSubtotal float64) float64 {
	if payableSubtotal >= r.FreeThreshold {
		return 0
	}
	return r.Fee
}
