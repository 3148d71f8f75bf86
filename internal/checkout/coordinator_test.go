package checkout

import (
	"context"
	"testing"

	"github.com/okoshkin/go_market/internal/coupon"
	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newWizard(t *testing.T) (*Coordinator, *AddressBook) {
	t.Helper()
	book := NewAddressBook(repository.NewMemoryAddressRepository())
	coupons := coupon.NewValidator(coupon.NewMemoryStore(domain.Coupon{
		Code: "SAVE10", Kind: domain.CouponKindPercentage, Value: 10, MinSubtotal: 50,
	}))
	return NewCoordinator(repository.NewMemoryStore(), book, coupons, zap.NewNop()), book
}

func snapshot() domain.CartSnapshot {
	return domain.CartSnapshot{
		Lines: []domain.CartLine{
			{ID: "l1", ProductID: 1, VendorID: "vendor-a", UnitPrice: 100, Quantity: 1, Available: true},
		},
		Subtotal: 100,
		Currency: "USD",
	}
}

func TestStart_OpensOnAddressStep(t *testing.T) {
	wizard, _ := newWizard(t)

	session, err := wizard.Start(context.Background(), "u1", snapshot(), "")

	require.NoError(t, err)
	assert.Equal(t, domain.StepAddress, session.State.Step)
	assert.Equal(t, domain.CheckoutStatusInitiated, session.Status)
	assert.NotEmpty(t, session.Token)
	require.NotNil(t, session.Snapshot)
	assert.False(t, session.Snapshot.CapturedAt.IsZero())
}

func TestStart_PreselectsDefaultAddress(t *testing.T) {
	wizard, book := newWizard(t)
	saved, err := book.Add(context.Background(), "u1", addr("Alice"))
	require.NoError(t, err)

	session, err := wizard.Start(context.Background(), "u1", snapshot(), "")

	require.NoError(t, err)
	assert.Equal(t, saved.ID, session.State.SelectedAddressID)
}

func TestStart_ResolvesCouponThroughValidator(t *testing.T) {
	wizard, _ := newWizard(t)

	session, err := wizard.Start(context.Background(), "u1", snapshot(), "SAVE10")

	require.NoError(t, err)
	require.NotNil(t, session.State.Coupon)
	assert.Equal(t, "SAVE10", session.State.Coupon.Code)
	assert.Equal(t, domain.CouponKindPercentage, session.State.Coupon.Kind)
	assert.Equal(t, 10.0, session.State.Coupon.Value)
}

func TestStart_RejectsUnknownCouponCode(t *testing.T) {
	wizard, _ := newWizard(t)

	_, err := wizard.Start(context.Background(), "u1", snapshot(), "HAX")

	assert.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestStart_RejectsCouponBelowMinimum(t *testing.T) {
	wizard, _ := newWizard(t)
	small := domain.CartSnapshot{
		Lines: []domain.CartLine{
			{ID: "l1", ProductID: 1, VendorID: "vendor-a", UnitPrice: 10, Quantity: 1, Available: true},
		},
		Subtotal: 10,
		Currency: "USD",
	}

	_, err := wizard.Start(context.Background(), "u1", small, "SAVE10")

	assert.ErrorIs(t, err, coupon.ErrBelowMinimumSubtotal)
}

func TestNext_GatesAddressStep(t *testing.T) {
	wizard, _ := newWizard(t)
	session, err := wizard.Start(context.Background(), "u1", snapshot(), "")
	require.NoError(t, err)

	_, err = wizard.Next(context.Background(), session.Token)

	assert.ErrorIs(t, err, ErrAddressRequired)
}

func TestNext_GatesPaymentStep(t *testing.T) {
	wizard, book := newWizard(t)
	saved, err := book.Add(context.Background(), "u1", addr("Alice"))
	require.NoError(t, err)
	session, err := wizard.Start(context.Background(), "u1", snapshot(), "")
	require.NoError(t, err)
	_, err = wizard.SelectAddress(context.Background(), session.Token, saved.ID)
	require.NoError(t, err)

	advanced, err := wizard.Next(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.StepPayment, advanced.State.Step)

	// no method or phone yet
	_, err = wizard.Next(context.Background(), session.Token)
	assert.ErrorIs(t, err, ErrPaymentDetailsRequired)

	_, err = wizard.SelectPayment(context.Background(), session.Token, domain.PaymentMethodCard, "+15550001", "")
	require.NoError(t, err)
	advanced, err = wizard.Next(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.StepConfirm, advanced.State.Step)

	_, err = wizard.Next(context.Background(), session.Token)
	assert.ErrorIs(t, err, ErrAtLastStep)
}

func TestBack_PreservesEnteredData(t *testing.T) {
	wizard, book := newWizard(t)
	saved, err := book.Add(context.Background(), "u1", addr("Alice"))
	require.NoError(t, err)
	session, err := wizard.Start(context.Background(), "u1", snapshot(), "")
	require.NoError(t, err)
	_, err = wizard.SelectAddress(context.Background(), session.Token, saved.ID)
	require.NoError(t, err)
	_, err = wizard.Next(context.Background(), session.Token)
	require.NoError(t, err)
	_, err = wizard.SelectPayment(context.Background(), session.Token, domain.PaymentMethodCard, "+15550001", "a@b.c")
	require.NoError(t, err)

	back, err := wizard.Back(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.StepAddress, back.State.Step)
	assert.Equal(t, saved.ID, back.State.SelectedAddressID)
	assert.Equal(t, domain.PaymentMethodCard, back.State.Method)
	assert.Equal(t, "+15550001", back.State.ContactPhone)

	_, err = wizard.Back(context.Background(), session.Token)
	assert.ErrorIs(t, err, ErrAtFirstStep)
}

func TestSelectAddress_RejectsForeignAddress(t *testing.T) {
	wizard, book := newWizard(t)
	other, err := book.Add(context.Background(), "someone-else", addr("Bob"))
	require.NoError(t, err)
	session, err := wizard.Start(context.Background(), "u1", snapshot(), "")
	require.NoError(t, err)

	_, err = wizard.SelectAddress(context.Background(), session.Token, other.ID)

	assert.ErrorIs(t, err, ErrAddressNotFound)
}

func TestResume_PicksUpWhereLeftOff(t *testing.T) {
	wizard, book := newWizard(t)
	saved, err := book.Add(context.Background(), "u1", addr("Alice"))
	require.NoError(t, err)
	session, err := wizard.Start(context.Background(), "u1", snapshot(), "")
	require.NoError(t, err)
	_, err = wizard.SelectAddress(context.Background(), session.Token, saved.ID)
	require.NoError(t, err)
	_, err = wizard.Next(context.Background(), session.Token)
	require.NoError(t, err)

	resumed, err := wizard.Get(context.Background(), session.Token)

	require.NoError(t, err)
	assert.Equal(t, domain.StepPayment, resumed.State.Step)
	assert.Equal(t, saved.ID, resumed.State.SelectedAddressID)
}
