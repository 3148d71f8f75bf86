package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/coupon"
	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrSessionClosed          = errors.New("checkout session is closed")
	ErrAddressRequired        = errors.New("a delivery address must be selected first")
	ErrPaymentDetailsRequired = errors.New("payment method and contact phone are required")
	ErrAtFirstStep            = errors.New("already at the first step")
	ErrAtLastStep             = errors.New("already at the confirmation step")
)

// Coordinator runs the checkout wizard over a persisted session. The
// session row is the cursor: a user who drops off and comes back resumes
// at the step they left, with everything they entered still in place.
type Coordinator struct {
	sessions  repository.SessionRepository
	addresses *AddressBook
	coupons   *coupon.Validator
	logger    *zap.Logger
	now       func() time.Time
}

func NewCoordinator(sessions repository.SessionRepository, addresses *AddressBook, coupons *coupon.Validator, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		sessions:  sessions,
		addresses: addresses,
		coupons:   coupons,
		logger:    logger,
		now:       time.Now,
	}
}

// Start opens a new session on the address step. The cart snapshot and
// any applied coupon are frozen into the session so later cart edits do
// not shift the ground under an in-flight checkout. Callers hand over a
// coupon code only; the discount descriptor stored on the session always
// comes from the validator.
func (c *Coordinator) Start(ctx context.Context, userID string, snapshot domain.CartSnapshot, couponCode string) (*domain.CheckoutSession, error) {
	now := c.now()
	snapshot.CapturedAt = now

	var applied *domain.AppliedCoupon
	if couponCode != "" {
		var err error
		applied, err = c.coupons.Validate(ctx, couponCode, snapshot, nil)
		if err != nil {
			return nil, err
		}
	}

	session := &domain.CheckoutSession{
		ID:     uuid.New(),
		Token:  uuid.NewString(),
		UserID: userID,
		State: domain.CheckoutState{
			Step:   domain.StepAddress,
			Coupon: applied,
		},
		Status:    domain.CheckoutStatusInitiated,
		Snapshot:  &snapshot,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// preselect the default address so most users only confirm it
	if book, err := c.addresses.List(ctx, userID); err == nil {
		for _, a := range book {
			if a.IsDefault {
				session.State.SelectedAddressID = a.ID
				break
			}
		}
	}

	if err := c.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	c.logger.Info("checkout session started",
		zap.String("token", session.Token), zap.String("user_id", userID))
	return session, nil
}

func (c *Coordinator) Get(ctx context.Context, token string) (*domain.CheckoutSession, error) {
	return c.sessions.GetSessionByToken(ctx, token)
}

// SelectAddress records the chosen address after verifying it actually
// belongs to the session's user.
func (c *Coordinator) SelectAddress(ctx context.Context, token, addressID string) (*domain.CheckoutSession, error) {
	session, err := c.openSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if _, err := c.addresses.Get(ctx, session.UserID, addressID); err != nil {
		return nil, err
	}
	session.State.SelectedAddressID = addressID
	return session, c.save(ctx, session)
}

func (c *Coordinator) SelectPayment(ctx context.Context, token string, method domain.PaymentMethod, phone, email string) (*domain.CheckoutSession, error) {
	session, err := c.openSession(ctx, token)
	if err != nil {
		return nil, err
	}
	session.State.Method = method
	session.State.ContactPhone = phone
	session.State.ContactEmail = email
	return session, c.save(ctx, session)
}

func (c *Coordinator) SetComment(ctx context.Context, token, comment string) (*domain.CheckoutSession, error) {
	session, err := c.openSession(ctx, token)
	if err != nil {
		return nil, err
	}
	session.State.Comment = comment
	return session, c.save(ctx, session)
}

// Next advances the wizard one step. Each gate checks only what its step
// collects, so a failed gate points at exactly what is missing.
func (c *Coordinator) Next(ctx context.Context, token string) (*domain.CheckoutSession, error) {
	session, err := c.openSession(ctx, token)
	if err != nil {
		return nil, err
	}

	switch session.State.Step {
	case domain.StepAddress:
		if session.State.SelectedAddressID == "" {
			return nil, ErrAddressRequired
		}
		session.State.Step = domain.StepPayment
	case domain.StepPayment:
		if session.State.Method == "" || session.State.ContactPhone == "" {
			return nil, ErrPaymentDetailsRequired
		}
		session.State.Step = domain.StepConfirm
	case domain.StepConfirm:
		return nil, ErrAtLastStep
	}

	return session, c.save(ctx, session)
}

// Back moves one step toward the address step. It never gates and never
// clears anything the user has entered.
func (c *Coordinator) Back(ctx context.Context, token string) (*domain.CheckoutSession, error) {
	session, err := c.openSession(ctx, token)
	if err != nil {
		return nil, err
	}

	switch session.State.Step {
	case domain.StepAddress:
		return nil, ErrAtFirstStep
	case domain.StepPayment:
		session.State.Step = domain.StepAddress
	case domain.StepConfirm:
		session.State.Step = domain.StepPayment
	}

	return session, c.save(ctx, session)
}

func (c *Coordinator) openSession(ctx context.Context, token string) (*domain.CheckoutSession, error) {
	session, err := c.sessions.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, session.Status)
	}
	return session, nil
}

func (c *Coordinator) save(ctx context.Context, session *domain.CheckoutSession) error {
	session.UpdatedAt = c.now()
	if err := c.sessions.UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("update checkout session: %w", err)
	}
	return nil
}
