package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/payment"
	"go.uber.org/zap"
)

// Fulfillment transitions, driven by vendor and courier updates.

func (s *Service) MarkProcessing(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.OrderStatusProcessing, domain.ActorOperator, "vendor started fulfillment")
}

// Ship records the tracking number and moves the order to SHIPPED in that
// order, so a shipped order always carries its tracking number.
func (s *Service) Ship(ctx context.Context, orderID uuid.UUID, tracking string) (*domain.Order, error) {
	if tracking == "" {
		return nil, fmt.Errorf("%w: tracking number", ErrReasonRequired)
	}
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status().CanTransitionTo(domain.OrderStatusShipped) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status(), domain.OrderStatusShipped)
	}
	if err := s.store.SetTrackingNumber(ctx, orderID, tracking); err != nil {
		return nil, fmt.Errorf("set tracking number: %w", err)
	}
	shipped, err := s.transition(ctx, orderID, domain.OrderStatusShipped, domain.ActorOperator, "handed to carrier")
	if err != nil {
		return nil, err
	}
	shipped.TrackingNumber = tracking
	return shipped, nil
}

func (s *Service) MarkOutForDelivery(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.OrderStatusOutForDelivery, domain.ActorOperator, "courier picked up")
}

func (s *Service) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.OrderStatusDelivered, domain.ActorOperator, "delivered")
}

func (s *Service) MarkFailed(ctx context.Context, orderID uuid.UUID, note string) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.OrderStatusFailed, domain.ActorSystem, note)
}

// Cancel cancels a customer's order while it is still cancellable and
// runs the payment compensation: void before capture, refund after. The
// compensation kind is recorded in the ledger entry's note.
func (s *Service) Cancel(ctx context.Context, userID string, orderID uuid.UUID, reason string) (*domain.Order, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}
	order, err := s.GetForUser(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status().Cancellable() {
		return nil, fmt.Errorf("%w: status %s", ErrNotCancellable, order.Status())
	}

	kind, _, err := s.payments.Compensate(ctx, orderID)
	switch {
	case errors.Is(err, payment.ErrAlreadyCompensated):
		// a previous cancel compensated the payment but crashed before
		// appending the event; finish the job instead of failing
		kind = payment.CompensationNone
		s.logger.Warn("payment already compensated, completing cancellation",
			zap.String("order_id", orderID.String()))
	case err != nil:
		return nil, fmt.Errorf("compensate payment: %w", err)
	}

	note := fmt.Sprintf("cancelled by customer: %s", reason)
	if kind == payment.CompensationVoid || kind == payment.CompensationRefund {
		note = fmt.Sprintf("%s (payment %s)", note, kind)
	}
	return s.transition(ctx, orderID, domain.OrderStatusCancelled, domain.ActorCustomer, note)
}
