package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/repository"
	"go.uber.org/zap"
)

var (
	// ErrIllegalTransition is a contract violation, not a user error.
	ErrIllegalTransition  = errors.New("illegal payment status transition")
	ErrAlreadyCompensated = errors.New("order payment already compensated")
	ErrAttemptTerminal    = errors.New("payment attempt is terminal")
)

// CompensationKind records which compensating action a cancellation
// produced against the provider.
type CompensationKind string

const (
	CompensationVoid   CompensationKind = "VOID"
	CompensationRefund CompensationKind = "REFUND"
	CompensationNone   CompensationKind = "NONE" // nothing charged yet (e.g. cash on delivery)
)

// Coordinator drives the per-attempt payment state machine. Payment
// status is independent from order status: a declined or timed-out
// attempt never touches the order on its own.
type Coordinator struct {
	repo     repository.PaymentRepository
	provider Provider
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewCoordinator(repo repository.PaymentRepository, provider Provider, timeout time.Duration, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		repo:     repo,
		provider: provider,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Authorize creates a new PENDING attempt and submits it to the provider.
// A declined result ends this attempt; retries must create a new one. A
// transport timeout leaves the attempt PENDING for reconciliation.
func (c *Coordinator) Authorize(ctx context.Context, orderID uuid.UUID, amount float64, currency string, method domain.PaymentMethod) (*domain.PaymentAttempt, error) {
	now := c.now()
	attempt := &domain.PaymentAttempt{
		ID:        uuid.New(),
		OrderID:   orderID,
		Method:    method,
		Amount:    amount,
		Currency:  currency,
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.repo.CreateAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create payment attempt: %w", err)
	}

	if method == domain.PaymentMethodCashOnDelivery {
		// nothing to charge up front; authorized by definition
		if err := c.transition(ctx, attempt, domain.PaymentStatusAuthorized); err != nil {
			return nil, err
		}
		return attempt, nil
	}

	providerCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.provider.Authorize(providerCtx, AuthorizeRequest{
		AttemptID: attempt.ID,
		OrderID:   orderID,
		Amount:    amount,
		Currency:  currency,
		Method:    method,
	})
	if err != nil {
		c.logger.Warn("provider authorize failed, attempt left pending",
			zap.String("attempt_id", attempt.ID.String()), zap.Error(err))
		return attempt, err
	}

	return c.apply(ctx, attempt, res)
}

// Confirm applies an asynchronous provider result delivered by webhook.
func (c *Coordinator) Confirm(ctx context.Context, res Result) (*domain.PaymentAttempt, error) {
	attempt, err := c.repo.GetAttemptByProviderRef(ctx, res.ProviderRef)
	if err != nil {
		return nil, err
	}
	return c.apply(ctx, attempt, &res)
}

// Reconcile polls the provider for an attempt stuck in PENDING.
func (c *Coordinator) Reconcile(ctx context.Context, attemptID uuid.UUID) (*domain.PaymentAttempt, error) {
	attempt, err := c.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != domain.PaymentStatusPending {
		return attempt, nil
	}
	if attempt.ProviderRef == "" {
		return attempt, nil
	}

	providerCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.provider.Status(providerCtx, attempt.ProviderRef)
	if err != nil {
		return attempt, err
	}
	return c.apply(ctx, attempt, res)
}

// Capture moves an authorized attempt to CAPTURED.
func (c *Coordinator) Capture(ctx context.Context, attemptID uuid.UUID) (*domain.PaymentAttempt, error) {
	attempt, err := c.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Method != domain.PaymentMethodCashOnDelivery {
		providerCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		if err := c.provider.Capture(providerCtx, attempt.ProviderRef); err != nil {
			return nil, err
		}
	}
	if err := c.transition(ctx, attempt, domain.PaymentStatusCaptured); err != nil {
		return nil, err
	}
	return attempt, nil
}

// LastAttempt returns the most recent attempt for an order, or nil.
func (c *Coordinator) LastAttempt(ctx context.Context, orderID uuid.UUID) (*domain.PaymentAttempt, error) {
	attempts, err := c.repo.ListAttempts(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return nil, nil
	}
	return attempts[len(attempts)-1], nil
}

// Compensate runs the compensating action for a cancelled order: void
// before capture, refund after. The second identical request finds the
// compensated attempt and fails with ErrAlreadyCompensated.
func (c *Coordinator) Compensate(ctx context.Context, orderID uuid.UUID) (CompensationKind, *domain.PaymentAttempt, error) {
	attempts, err := c.repo.ListAttempts(ctx, orderID)
	if err != nil {
		return "", nil, err
	}

	var target *domain.PaymentAttempt
	for _, a := range attempts {
		switch a.Status {
		case domain.PaymentStatusVoided, domain.PaymentStatusRefunded:
			return "", a, ErrAlreadyCompensated
		case domain.PaymentStatusPending, domain.PaymentStatusAuthorized, domain.PaymentStatusCaptured:
			target = a
		}
	}
	if target == nil {
		return CompensationNone, nil, nil
	}

	providerCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if target.Status == domain.PaymentStatusCaptured {
		if err := c.provider.Refund(providerCtx, target.ProviderRef, target.Amount); err != nil {
			return "", nil, err
		}
		if err := c.transition(ctx, target, domain.PaymentStatusRefunded); err != nil {
			return "", nil, err
		}
		return CompensationRefund, target, nil
	}

	if target.ProviderRef != "" {
		if err := c.provider.Void(providerCtx, target.ProviderRef); err != nil {
			return "", nil, err
		}
	}
	if err := c.transition(ctx, target, domain.PaymentStatusVoided); err != nil {
		return "", nil, err
	}
	return CompensationVoid, target, nil
}

// RefundCaptured refunds a delivered order's captured payment once its
// refund request completes.
func (c *Coordinator) RefundCaptured(ctx context.Context, orderID uuid.UUID) (*domain.PaymentAttempt, error) {
	attempts, err := c.repo.ListAttempts(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for i := len(attempts) - 1; i >= 0; i-- {
		a := attempts[i]
		if a.Status == domain.PaymentStatusCaptured || a.Status == domain.PaymentStatusAuthorized {
			providerCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			if a.ProviderRef != "" {
				if err := c.provider.Refund(providerCtx, a.ProviderRef, a.Amount); err != nil {
					return nil, err
				}
			}
			if err := c.transition(ctx, a, domain.PaymentStatusRefunded); err != nil {
				return nil, err
			}
			return a, nil
		}
	}
	return nil, repository.ErrAttemptNotFound
}

func (c *Coordinator) apply(ctx context.Context, attempt *domain.PaymentAttempt, res *Result) (*domain.PaymentAttempt, error) {
	if res.ProviderRef != "" {
		attempt.ProviderRef = res.ProviderRef
	}
	switch res.Status {
	case domain.PaymentStatusAuthorized, domain.PaymentStatusCaptured:
		if err := c.transition(ctx, attempt, res.Status); err != nil {
			return nil, err
		}
	case domain.PaymentStatusDeclined:
		attempt.FailureReason = res.FailureReason
		if err := c.transition(ctx, attempt, domain.PaymentStatusDeclined); err != nil {
			return nil, err
		}
	case domain.PaymentStatusPending:
		attempt.UpdatedAt = c.now()
		if err := c.repo.UpdateAttempt(ctx, attempt); err != nil {
			return nil, fmt.Errorf("update payment attempt: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: provider reported %q", ErrIllegalTransition, res.Status)
	}
	return attempt, nil
}

func (c *Coordinator) transition(ctx context.Context, attempt *domain.PaymentAttempt, to domain.PaymentStatus) error {
	if attempt.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrAttemptTerminal, attempt.Status)
	}
	if !attempt.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, attempt.Status, to)
	}
	attempt.Status = to
	attempt.UpdatedAt = c.now()
	if err := c.repo.UpdateAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("update payment attempt: %w", err)
	}
	c.logger.Info("payment attempt transitioned",
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("order_id", attempt.OrderID.String()),
		zap.String("status", string(to)))
	return nil
}
