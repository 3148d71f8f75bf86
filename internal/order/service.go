package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/payment"
	"github.com/okoshkin/go_market/internal/repository"
	"go.uber.org/zap"
)

var (
	// ErrIllegalTransition is a contract violation on the caller's side.
	ErrIllegalTransition = errors.New("illegal order status transition")
	ErrReasonRequired    = errors.New("a reason is required")
	ErrNotCancellable    = errors.New("order can no longer be cancelled")
	ErrNotOwned          = errors.New("order belongs to another user")
)

// Compensator reverses whatever the payment provider holds for an order.
type Compensator interface {
	Compensate(ctx context.Context, orderID uuid.UUID) (payment.CompensationKind, *domain.PaymentAttempt, error)
	RefundCaptured(ctx context.Context, orderID uuid.UUID) (*domain.PaymentAttempt, error)
}

// Store is the persistence the order service needs.
type Store interface {
	repository.OrderRepository
	repository.RefundRepository
}

// Service owns the order lifecycle. Status is never a mutable column:
// every change appends to the status ledger and the current status is
// derived from the last entry.
type Service struct {
	store    Store
	payments Compensator
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store Store, payments Compensator, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		payments: payments,
		logger:   logger,
		now:      time.Now,
	}
}

// Place creates the vendor order for one checkout group. It is
// idempotent on (session token, vendor): losing the insert race or
// retrying a submission returns the already-created order.
func (s *Service) Place(ctx context.Context, req domain.VendorOrderRequest) (*domain.Order, error) {
	now := s.now()
	order := &domain.Order{
		ID:           uuid.New(),
		OrderNumber:  newOrderNumber(now),
		UserID:       req.UserID,
		VendorID:     req.VendorID,
		SessionToken: req.SessionToken,
		Items:        req.Items,
		Breakdown:    req.Breakdown,
		Currency:     req.Currency,
		StatusHistory: []domain.StatusEvent{
			{Status: domain.OrderStatusPending, At: now, Actor: domain.ActorSystem, Note: "order placed"},
		},
		CreatedAt: now,
	}

	err := s.store.CreateOrder(ctx, order)
	if errors.Is(err, repository.ErrDuplicateSubmission) {
		existing, getErr := s.store.GetOrderBySubmission(ctx, req.SessionToken, req.VendorID)
		if getErr != nil {
			return nil, fmt.Errorf("load existing order for duplicate submission: %w", getErr)
		}
		s.logger.Info("duplicate submission, reusing order",
			zap.String("order_id", existing.ID.String()),
			zap.String("vendor_id", req.VendorID))
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("vendor_id", order.VendorID),
		zap.Float64("total", order.Breakdown.Total))
	return order, nil
}

// Confirm moves a freshly placed order to CONFIRMED once its payment is
// authorized.
func (s *Service) Confirm(ctx context.Context, orderID uuid.UUID, note string) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.OrderStatusConfirmed, domain.ActorSystem, note)
}

func (s *Service) Get(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.store.GetOrderByID(ctx, orderID)
}

// GetForUser loads an order and verifies ownership in one place, so
// handlers cannot forget the check.
func (s *Service) GetForUser(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOwned
	}
	return order, nil
}

func (s *Service) List(ctx context.Context, userID string, f domain.OrderFilter) ([]*domain.Order, error) {
	return s.store.ListOrders(ctx, userID, f)
}

// transition appends one ledger event after checking the status machine.
// Terminal orders take no events at all.
func (s *Service) transition(ctx context.Context, orderID uuid.UUID, to domain.OrderStatus, actor domain.ActorKind, note string) (*domain.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := order.Status()
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	ev := domain.StatusEvent{Status: to, At: s.now(), Actor: actor, Note: note}
	if err := s.store.AppendStatusEvent(ctx, orderID, ev); err != nil {
		return nil, fmt.Errorf("append status event: %w", err)
	}
	order.StatusHistory = append(order.StatusHistory, ev)
	switch to {
	case domain.OrderStatusCancelled:
		order.CancelledAt = &ev.At
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &ev.At
	}

	s.logger.Info("order status changed",
		zap.String("order_id", orderID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", string(actor)))
	return order, nil
}

// newOrderNumber builds a human-quotable number: date plus a short
// random suffix. Uniqueness is ultimately guarded by the database.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("MKT-%s-%s", now.Format("20060102"), suffix)
}
