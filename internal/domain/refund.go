package domain

import (
	"time"

	"github.com/google/uuid"
)

type RefundStatus string

const (
	RefundStatusRequested RefundStatus = "REQUESTED"
	RefundStatusApproved  RefundStatus = "APPROVED"
	RefundStatusRejected  RefundStatus = "REJECTED"
	RefundStatusCompleted RefundStatus = "COMPLETED"
)

var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundStatusRequested: {RefundStatusApproved, RefundStatusRejected},
	RefundStatusApproved:  {RefundStatusCompleted},
}

func (s RefundStatus) CanTransitionTo(to RefundStatus) bool {
	for _, allowed := range refundTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s RefundStatus) IsOpen() bool {
	return s == RefundStatusRequested || s == RefundStatusApproved
}

// RefundRequest tracks the refund sub-workflow for a delivered order. The
// order itself moves to REFUNDED only once this reaches COMPLETED.
type RefundRequest struct {
	ID        uuid.UUID    `json:"id"`
	OrderID   uuid.UUID    `json:"order_id"`
	Reason    string       `json:"reason"`
	Status    RefundStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
