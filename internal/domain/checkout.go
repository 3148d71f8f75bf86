package domain

import (
	"time"

	"github.com/google/uuid"
)

type CheckoutStep string

const (
	StepAddress CheckoutStep = "ADDRESS"
	StepPayment CheckoutStep = "PAYMENT"
	StepConfirm CheckoutStep = "CONFIRM"
)

// CheckoutState is the wizard's accumulated input. Backward navigation
// never clears any of these fields.
type CheckoutState struct {
	Step              CheckoutStep   `json:"step"`
	SelectedAddressID string         `json:"selected_address_id,omitempty"`
	Method            PaymentMethod  `json:"method,omitempty"`
	ContactPhone      string         `json:"contact_phone,omitempty"`
	ContactEmail      string         `json:"contact_email,omitempty"`
	Comment           string         `json:"comment,omitempty"`
	Coupon            *AppliedCoupon `json:"coupon,omitempty"`
}

type CheckoutStatus string

const (
	CheckoutStatusInitiated  CheckoutStatus = "INITIATED"
	CheckoutStatusSubmitting CheckoutStatus = "SUBMITTING"
	CheckoutStatusCompleted  CheckoutStatus = "COMPLETED"
	CheckoutStatusFailed     CheckoutStatus = "FAILED"
)

var checkoutTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusInitiated:  {CheckoutStatusSubmitting, CheckoutStatusFailed},
	CheckoutStatusSubmitting: {CheckoutStatusCompleted, CheckoutStatusFailed, CheckoutStatusSubmitting},
}

func (s CheckoutStatus) CanTransitionTo(to CheckoutStatus) bool {
	for _, allowed := range checkoutTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted || s == CheckoutStatusFailed
}

// CheckoutSession is the persisted cursor of one checkout run: a resumed
// session picks up from here instead of restarting from zero.
type CheckoutSession struct {
	ID        uuid.UUID      `json:"id"`
	Token     string         `json:"token"`
	UserID    string         `json:"user_id"`
	State     CheckoutState  `json:"state"`
	Status    CheckoutStatus `json:"status"`
	Snapshot  *CartSnapshot  `json:"snapshot,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// VendorOrderRequest is the order-creation request for one vendor group.
// IdempotencyKey is session token + vendor, so a retried submission can
// never create a second order for the same group.
type VendorOrderRequest struct {
	SessionToken   string         `json:"session_token"`
	IdempotencyKey string         `json:"idempotency_key"`
	UserID         string         `json:"user_id"`
	VendorID       string         `json:"vendor_id"`
	Items          []OrderItem    `json:"items"`
	Breakdown      PriceBreakdown `json:"breakdown"`
	Currency       string         `json:"currency"`
	AddressID      string         `json:"address_id"`
	Method         PaymentMethod  `json:"method"`
	ContactPhone   string         `json:"contact_phone"`
	ContactEmail   string         `json:"contact_email,omitempty"`
	Comment        string         `json:"comment,omitempty"`
}
