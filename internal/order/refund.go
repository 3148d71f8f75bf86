package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrRefundNotAllowed  = errors.New("refunds are only available for delivered orders")
	ErrRefundAlreadyOpen = errors.New("order already has an open refund request")
)

// RequestRefund opens a refund for a delivered order. One open request
// per order at a time.
func (s *Service) RequestRefund(ctx context.Context, userID string, orderID uuid.UUID, reason string) (*domain.RefundRequest, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}
	order, err := s.GetForUser(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status() != domain.OrderStatusDelivered {
		return nil, fmt.Errorf("%w: status %s", ErrRefundNotAllowed, order.Status())
	}

	if _, err := s.store.GetOpenRefundByOrder(ctx, orderID); err == nil {
		return nil, ErrRefundAlreadyOpen
	} else if !errors.Is(err, repository.ErrRefundNotFound) {
		return nil, err
	}

	now := s.now()
	refund := &domain.RefundRequest{
		ID:        uuid.New(),
		OrderID:   orderID,
		Reason:    reason,
		Status:    domain.RefundStatusRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateRefund(ctx, refund); err != nil {
		return nil, fmt.Errorf("create refund request: %w", err)
	}

	s.logger.Info("refund requested",
		zap.String("refund_id", refund.ID.String()),
		zap.String("order_id", orderID.String()))
	return refund, nil
}

func (s *Service) ApproveRefund(ctx context.Context, refundID uuid.UUID) (*domain.RefundRequest, error) {
	return s.moveRefund(ctx, refundID, domain.RefundStatusApproved)
}

func (s *Service) RejectRefund(ctx context.Context, refundID uuid.UUID) (*domain.RefundRequest, error) {
	return s.moveRefund(ctx, refundID, domain.RefundStatusRejected)
}

// CompleteRefund pays the money back and closes the loop: the refund
// request completes and the order itself moves to REFUNDED.
func (s *Service) CompleteRefund(ctx context.Context, refundID uuid.UUID) (*domain.RefundRequest, error) {
	refund, err := s.moveRefund(ctx, refundID, domain.RefundStatusCompleted)
	if err != nil {
		return nil, err
	}

	if _, err := s.payments.RefundCaptured(ctx, refund.OrderID); err != nil {
		if !errors.Is(err, repository.ErrAttemptNotFound) {
			return nil, fmt.Errorf("refund captured payment: %w", err)
		}
		// cash on delivery orders have nothing captured to return
	}

	if _, err := s.transition(ctx, refund.OrderID, domain.OrderStatusRefunded, domain.ActorOperator,
		fmt.Sprintf("refund %s completed", refund.ID)); err != nil {
		return nil, err
	}
	return refund, nil
}

func (s *Service) GetRefund(ctx context.Context, refundID uuid.UUID) (*domain.RefundRequest, error) {
	return s.store.GetRefund(ctx, refundID)
}

func (s *Service) moveRefund(ctx context.Context, refundID uuid.UUID, to domain.RefundStatus) (*domain.RefundRequest, error) {
	refund, err := s.store.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if !refund.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: refund %s -> %s", ErrIllegalTransition, refund.Status, to)
	}
	refund.Status = to
	refund.UpdatedAt = s.now()
	if err := s.store.UpdateRefund(ctx, refund); err != nil {
		return nil, fmt.Errorf("update refund request: %w", err)
	}

	s.logger.Info("refund status changed",
		zap.String("refund_id", refundID.String()),
		zap.String("status", string(to)))
	return refund, nil
}
