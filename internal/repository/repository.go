package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/domain"
)

var (
	ErrCartNotFound        = errors.New("cart not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrDuplicateSubmission = errors.New("order for this checkout group already exists")
	ErrSessionNotFound     = errors.New("checkout session not found")
	ErrAttemptNotFound     = errors.New("payment attempt not found")
	ErrRefundNotFound      = errors.New("refund request not found")
)

// Credentials configure the Postgres connection and migrations location.
type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CartRepository is the remote cart store (MongoDB in production).
// Consumers define the interface, not the implementation.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, userID string) error
}

// AddressRepository stores a user's address book. The whole book is
// written at once so the single-default invariant is enforced in one
// place by the address manager.
type AddressRepository interface {
	ListAddresses(ctx context.Context, userID string) ([]domain.DeliveryAddress, error)
	SaveAddresses(ctx context.Context, userID string, book []domain.DeliveryAddress) error
}

type OrderRepository interface {
	// CreateOrder returns ErrDuplicateSubmission when an order for the
	// same (session token, vendor) pair already exists.
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error)
	GetOrderBySubmission(ctx context.Context, sessionToken, vendorID string) (*domain.Order, error)
	ListOrders(ctx context.Context, userID string, f domain.OrderFilter) ([]*domain.Order, error)
	// AppendStatusEvent appends to the ledger and records an outbox event
	// in the same transaction; it also stamps cancelled_at/delivered_at.
	AppendStatusEvent(ctx context.Context, orderID uuid.UUID, ev domain.StatusEvent) error
	SetTrackingNumber(ctx context.Context, orderID uuid.UUID, tracking string) error
}

type PaymentRepository interface {
	CreateAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error
	UpdateAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error
	GetAttempt(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error)
	GetAttemptByProviderRef(ctx context.Context, ref string) (*domain.PaymentAttempt, error)
	ListAttempts(ctx context.Context, orderID uuid.UUID) ([]*domain.PaymentAttempt, error)
}

type RefundRepository interface {
	CreateRefund(ctx context.Context, r *domain.RefundRequest) error
	UpdateRefund(ctx context.Context, r *domain.RefundRequest) error
	GetRefund(ctx context.Context, id uuid.UUID) (*domain.RefundRequest, error)
	// GetOpenRefundByOrder returns ErrRefundNotFound when the order has no
	// refund in REQUESTED or APPROVED state.
	GetOpenRefundByOrder(ctx context.Context, orderID uuid.UUID) (*domain.RefundRequest, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, s *domain.CheckoutSession) error
	GetSessionByToken(ctx context.Context, token string) (*domain.CheckoutSession, error)
	UpdateSession(ctx context.Context, s *domain.CheckoutSession) error
	// FailStaleSubmitting fails sessions stuck in SUBMITTING longer than
	// maxAge and returns how many were failed.
	FailStaleSubmitting(ctx context.Context, maxAge time.Duration) (int64, error)
}

// OutboxEvent is one row of the transactional outbox, published to Kafka
// by the poller.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

// Store is the full persistence surface backed by Postgres; services
// depend on the narrow interfaces above.
type Store interface {
	OrderRepository
	PaymentRepository
	RefundRepository
	SessionRepository
	OutboxRepository
	RunMigrations(*Credentials) error
	Close() error
}
