package pricing

import "github.com/okoshkin/go_market/internal/domain"

// FeeAllocator decides how cart-wide amounts (delivery fee, coupon
// discount) are split across vendor groups when a checkout fans out into
// one order per vendor. It is a strategy, not a hidden constant.
type FeeAllocator interface {
	Allocate(total float64, groups []domain.VendorGroup) []float64
}

// ProportionalAllocator splits an amount proportionally to each group's
// share of the payable subtotal. Rounding residue goes to the group with
// the largest subtotal, so the parts always sum to the whole and the
// split is deterministic.
type ProportionalAllocator struct{}

func (ProportionalAllocator) Allocate(total float64, groups []domain.VendorGroup) []float64 {
	parts := make([]float64, len(groups))
	if len(groups) == 0 || total == 0 {
		return parts
	}

	var base float64
	largest := 0
	for i, g := range groups {
		base += g.Subtotal
		if g.Subtotal > groups[largest].Subtotal {
			largest = i
		}
	}
	if base == 0 {
		parts[0] = total
		return parts
	}

	var allocated float64
	for i, g := range groups {
		parts[i] = round2(total * g.Subtotal / base)
		allocated += parts[i]
	}
	parts[largest] = round2(parts[largest] + total - allocated)
	return parts
}

// SplitBreakdown produces each vendor group's slice of a cart-wide
// breakdown. Subtotal and item discounts are intrinsic to the group's own
// lines; the delivery fee and coupon discount are divided by the
// allocator. The per-group totals sum to the cart total.
func SplitBreakdown(whole domain.PriceBreakdown, groups []domain.VendorGroup, alloc FeeAllocator) []domain.PriceBreakdown {
	fees := alloc.Allocate(whole.DeliveryFee, groups)
	discounts := alloc.Allocate(whole.CouponDiscount, groups)

	parts := make([]domain.PriceBreakdown, len(groups))
	for i, g := range groups {
		var subtotal, itemDiscount float64
		for _, l := range g.Lines {
			if !l.Available {
				continue
			}
			qty := float64(l.Quantity)
			list := l.EffectiveListPrice()
			subtotal += list * qty
			itemDiscount += (list - l.UnitPrice) * qty
		}
		parts[i] = domain.PriceBreakdown{
			Subtotal:          round2(subtotal),
			ItemDiscountTotal: round2(itemDiscount),
			CouponDiscount:    discounts[i],
			DeliveryFee:       fees[i],
			Total:             round2(subtotal - itemDiscount - discounts[i] + fees[i]),
		}
	}
	return parts
}
