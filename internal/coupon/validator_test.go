package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/okoshkin/go_market/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotWith(subtotal float64, vendors ...string) domain.CartSnapshot {
	snap := domain.CartSnapshot{Subtotal: subtotal, Currency: "USD", CapturedAt: time.Now()}
	for i, v := range vendors {
		snap.Lines = append(snap.Lines, domain.CartLine{
			ID: v, ProductID: int64(i + 1), VendorID: v,
			UnitPrice: subtotal / float64(len(vendors)), Quantity: 1, Available: true,
		})
	}
	return snap
}

func newValidator(coupons ...domain.Coupon) *Validator {
	return NewValidator(NewMemoryStore(coupons...))
}

func TestValidate_Accepted(t *testing.T) {
	v := newValidator(domain.Coupon{Code: "SAVE10", Kind: domain.CouponKindPercentage, Value: 10, MinSubtotal: 300})

	applied, err := v.Validate(context.Background(), "SAVE10", snapshotWith(330, "vendor-a"), nil)

	require.NoError(t, err)
	assert.Equal(t, "SAVE10", applied.Code)
	assert.Equal(t, domain.CouponKindPercentage, applied.Kind)
	assert.Equal(t, 10.0, applied.Value)
	assert.False(t, applied.FreeDelivery)
}

func TestValidate_NotFound(t *testing.T) {
	v := newValidator()

	_, err := v.Validate(context.Background(), "NOPE", snapshotWith(100, "vendor-a"), nil)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidate_Expired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	v := newValidator(domain.Coupon{Code: "OLD", Kind: domain.CouponKindFixed, Value: 5, ExpiresAt: &past})

	_, err := v.Validate(context.Background(), "OLD", snapshotWith(100, "vendor-a"), nil)

	assert.ErrorIs(t, err, ErrExpired)
}

func TestValidate_BelowMinimumSubtotal(t *testing.T) {
	v := newValidator(domain.Coupon{Code: "SAVE10", Kind: domain.CouponKindPercentage, Value: 10, MinSubtotal: 300})

	_, err := v.Validate(context.Background(), "SAVE10", snapshotWith(299, "vendor-a"), nil)

	assert.ErrorIs(t, err, ErrBelowMinimumSubtotal)
}

func TestValidate_AlreadyApplied(t *testing.T) {
	v := newValidator(domain.Coupon{Code: "SAVE10", Kind: domain.CouponKindPercentage, Value: 10})
	applied := &domain.AppliedCoupon{Code: "SAVE10", Kind: domain.CouponKindPercentage, Value: 10}

	_, err := v.Validate(context.Background(), "SAVE10", snapshotWith(500, "vendor-a"), applied)

	assert.ErrorIs(t, err, ErrAlreadyApplied)
}

func TestValidate_VendorNotEligible(t *testing.T) {
	v := newValidator(domain.Coupon{Code: "VENDORB", Kind: domain.CouponKindFixed, Value: 20, VendorID: "vendor-b"})

	_, err := v.Validate(context.Background(), "VENDORB", snapshotWith(500, "vendor-a"), nil)

	assert.ErrorIs(t, err, ErrVendorNotEligible)
}

func TestRevalidate_StillValid(t *testing.T) {
	v := newValidator(domain.Coupon{Code: "SAVE10", Kind: domain.CouponKindPercentage, Value: 10, MinSubtotal: 300})
	applied := &domain.AppliedCoupon{Code: "SAVE10", Kind: domain.CouponKindPercentage, Value: 10}

	kept, removal, err := v.Revalidate(context.Background(), applied, snapshotWith(400, "vendor-a"))

	require.NoError(t, err)
	assert.Nil(t, removal)
	assert.Equal(t, applied, kept)
}

func TestRevalidate_DetachesWhenSubtotalDrops(t *testing.T) {
	v := newValidator(domain.Coupon{Code: "SAVE10", Kind: domain.CouponKindPercentage, Value: 10, MinSubtotal: 300})
	applied := &domain.AppliedCoupon{Code: "SAVE10", Kind: domain.CouponKindPercentage, Value: 10}

	kept, removal, err := v.Revalidate(context.Background(), applied, snapshotWith(150, "vendor-a"))

	require.NoError(t, err)
	assert.Nil(t, kept, "a rejected coupon must never stay applied")
	require.NotNil(t, removal)
	assert.Equal(t, "SAVE10", removal.Code)
	assert.ErrorIs(t, removal.Reason, ErrBelowMinimumSubtotal)
	assert.Contains(t, removal.String(), "coupon removed")
}

func TestRevalidate_NoCouponIsNoop(t *testing.T) {
	v := newValidator()

	kept, removal, err := v.Revalidate(context.Background(), nil, snapshotWith(100, "vendor-a"))

	require.NoError(t, err)
	assert.Nil(t, kept)
	assert.Nil(t, removal)
}
