package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/pricing"
	"github.com/okoshkin/go_market/internal/repository"
	"go.uber.org/zap"
)

var ErrEmptyCheckout = errors.New("nothing available to order")

// OrderPlacer creates and confirms vendor orders. Place must be
// idempotent on (session token, vendor): a retried request returns the
// order the first request created.
type OrderPlacer interface {
	Place(ctx context.Context, req domain.VendorOrderRequest) (*domain.Order, error)
	Confirm(ctx context.Context, orderID uuid.UUID, note string) (*domain.Order, error)
}

// PaymentAuthorizer starts a payment attempt for one order.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, orderID uuid.UUID, amount float64, currency string, method domain.PaymentMethod) (*domain.PaymentAttempt, error)
}

// GroupResult is the per-vendor outcome of one submission pass.
type GroupResult struct {
	VendorID string                 `json:"vendor_id"`
	Order    *domain.Order          `json:"order,omitempty"`
	Attempt  *domain.PaymentAttempt `json:"payment,omitempty"`
	Err      error                  `json:"-"`
}

type SubmitResult struct {
	Session *domain.CheckoutSession `json:"session"`
	Groups  []GroupResult           `json:"groups"`
}

// Submitter fans a confirmed checkout out into one order per vendor
// group. There is no cross-group rollback: groups that succeed stay
// placed, groups that fail are reported, and resubmitting the same
// session fills in only the missing ones.
type Submitter struct {
	sessions repository.SessionRepository
	carts    repository.CartRepository
	orders   OrderPlacer
	payments PaymentAuthorizer
	alloc    pricing.FeeAllocator
	rule     domain.DeliveryRule
	currency string
	logger   *zap.Logger
}

func NewSubmitter(
	sessions repository.SessionRepository,
	carts repository.CartRepository,
	orders OrderPlacer,
	payments PaymentAuthorizer,
	alloc pricing.FeeAllocator,
	rule domain.DeliveryRule,
	currency string,
	logger *zap.Logger,
) *Submitter {
	return &Submitter{
		sessions: sessions,
		carts:    carts,
		orders:   orders,
		payments: payments,
		alloc:    alloc,
		rule:     rule,
		currency: currency,
		logger:   logger,
	}
}

// Submit places the session's orders. It may be called again after a
// partial failure; already-placed groups are reused, not duplicated.
func (s *Submitter) Submit(ctx context.Context, token string) (*SubmitResult, error) {
	session, err := s.sessions.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.CheckoutStatusCompleted || session.Status == domain.CheckoutStatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, session.Status)
	}
	if session.State.SelectedAddressID == "" {
		return nil, ErrAddressRequired
	}
	if session.State.Method == "" || session.State.ContactPhone == "" {
		return nil, ErrPaymentDetailsRequired
	}
	if session.Snapshot == nil || len(availableLines(session.Snapshot.Lines)) == 0 {
		return nil, ErrEmptyCheckout
	}

	if err := s.setStatus(ctx, session, domain.CheckoutStatusSubmitting); err != nil {
		return nil, err
	}

	lines := session.Snapshot.Lines
	groups := pricing.GroupByVendor(availableLines(lines))
	whole := pricing.ComputeBreakdown(lines, session.State.Coupon, s.rule)
	parts := pricing.SplitBreakdown(whole, groups, s.alloc)

	results := make([]GroupResult, 0, len(groups))
	failed := 0
	for i, g := range groups {
		res := s.submitGroup(ctx, session, g, parts[i])
		if res.Err != nil {
			failed++
		}
		results = append(results, res)
	}

	if failed == 0 {
		if err := s.setStatus(ctx, session, domain.CheckoutStatusCompleted); err != nil {
			return nil, err
		}
		// the cart served its purpose; a failed delete only leaves a
		// stale cart behind, never a broken order
		if err := s.carts.DeleteCart(ctx, session.UserID); err != nil {
			s.logger.Warn("clear cart after checkout", zap.String("user_id", session.UserID), zap.Error(err))
		}
	} else {
		// the session stays SUBMITTING so a retry can fill in the
		// missing groups; abandoned sessions are failed by the reaper
		s.logger.Warn("partial checkout submission",
			zap.String("token", token),
			zap.Int("failed_groups", failed),
			zap.Int("total_groups", len(groups)))
	}

	return &SubmitResult{Session: session, Groups: results}, nil
}

func (s *Submitter) submitGroup(ctx context.Context, session *domain.CheckoutSession, g domain.VendorGroup, part domain.PriceBreakdown) GroupResult {
	res := GroupResult{VendorID: g.VendorID}

	req := domain.VendorOrderRequest{
		SessionToken:   session.Token,
		IdempotencyKey: session.Token + ":" + g.VendorID,
		UserID:         session.UserID,
		VendorID:       g.VendorID,
		Items:          orderItems(g.Lines),
		Breakdown:      part,
		Currency:       s.currency,
		AddressID:      session.State.SelectedAddressID,
		Method:         session.State.Method,
		ContactPhone:   session.State.ContactPhone,
		ContactEmail:   session.State.ContactEmail,
		Comment:        session.State.Comment,
	}

	order, err := s.orders.Place(ctx, req)
	if err != nil {
		s.logger.Error("place vendor order",
			zap.String("token", session.Token),
			zap.String("vendor_id", g.VendorID),
			zap.Error(err))
		res.Err = err
		return res
	}
	res.Order = order

	if order.Status() != domain.OrderStatusPending {
		// a reused order from a previous pass is already past payment
		return res
	}

	attempt, err := s.payments.Authorize(ctx, order.ID, part.Total, s.currency, session.State.Method)
	res.Attempt = attempt
	if err != nil {
		res.Err = err
		return res
	}
	if attempt.Status != domain.PaymentStatusAuthorized {
		res.Err = fmt.Errorf("payment not authorized: %s", attempt.Status)
		return res
	}

	confirmed, err := s.orders.Confirm(ctx, order.ID, "payment authorized")
	if err != nil {
		res.Err = err
		return res
	}
	res.Order = confirmed
	return res
}

func (s *Submitter) setStatus(ctx context.Context, session *domain.CheckoutSession, to domain.CheckoutStatus) error {
	if !session.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrSessionClosed, session.Status, to)
	}
	session.Status = to
	if err := s.sessions.UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("update checkout session: %w", err)
	}
	return nil
}

func availableLines(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.Available {
			out = append(out, l)
		}
	}
	return out
}

func orderItems(lines []domain.CartLine) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, domain.OrderItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			ListPrice: l.ListPrice,
			Quantity:  l.Quantity,
		})
	}
	return items
}
