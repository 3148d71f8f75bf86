package pricing

import (
	"math"

	"github.com/okoshkin/go_market/internal/domain"
)

// ComputeBreakdown prices a set of cart lines. Pure function: no I/O,
// deterministic given its inputs.
//
// Unavailable lines are excluded entirely. The delivery fee is evaluated
// on the payable item subtotal (after item discounts, before coupon). The
// coupon discount is clamped so the total never goes below zero.
func ComputeBreakdown(lines []domain.CartLine, coupon *domain.AppliedCoupon, rule domain.DeliveryRule) domain.PriceBreakdown {
	var subtotal, itemDiscount float64
	for _, l := range lines {
		if !l.Available {
			continue
		}
		qty := float64(l.Quantity)
		list := l.EffectiveListPrice()
		subtotal += list * qty
		itemDiscount += (list - l.UnitPrice) * qty
	}

	payable := subtotal - itemDiscount

	fee := rule.FeeFor(payable)
	if coupon != nil && coupon.FreeDelivery {
		fee = 0
	}

	var couponDiscount float64
	if coupon != nil {
		switch coupon.Kind {
		case domain.CouponKindPercentage:
			couponDiscount = payable * coupon.Value / 100
		case domain.CouponKindFixed:
			couponDiscount = coupon.Value
		}
		// clamp at zero total, not at subtotal
		if couponDiscount > payable+fee {
			couponDiscount = payable + fee
		}
	}

	return domain.PriceBreakdown{
		Subtotal:          round2(subtotal),
		ItemDiscountTotal: round2(itemDiscount),
		CouponDiscount:    round2(couponDiscount),
		DeliveryFee:       round2(fee),
		Total:             round2(subtotal - itemDiscount - couponDiscount + fee),
	}
}

// GroupByVendor splits lines into vendor groups in first-appearance
// order. Groups whose last line was removed simply do not appear.
func GroupByVendor(lines []domain.CartLine) []domain.VendorGroup {
	index := make(map[string]int)
	var groups []domain.VendorGroup
	for _, l := range lines {
		i, ok := index[l.VendorID]
		if !ok {
			i = len(groups)
			index[l.VendorID] = i
			groups = append(groups, domain.VendorGroup{VendorID: l.VendorID})
		}
		groups[i].Lines = append(groups[i].Lines, l)
		if l.Available {
			groups[i].Subtotal += l.UnitPrice * float64(l.Quantity)
		}
	}
	for i := range groups {
		groups[i].Subtotal = round2(groups[i].Subtotal)
	}
	return groups
}

// Snapshot freezes the current lines with the payable subtotal of the
// available ones. Callers stamp CapturedAt.
func Snapshot(lines []domain.CartLine, currency string) domain.CartSnapshot {
	var subtotal float64
	for _, l := range lines {
		if l.Available {
			subtotal += l.UnitPrice * float64(l.Quantity)
		}
	}
	copied := make([]domain.CartLine, len(lines))
	copy(copied, lines)
	return domain.CartSnapshot{
		Lines:    copied,
		Subtotal: round2(subtotal),
		Currency: currency,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
