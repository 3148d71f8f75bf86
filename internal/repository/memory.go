package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/domain"
)

// MemoryStore is a mutex-guarded in-memory Store used by unit tests and
// the offline demo wiring. It mirrors the Postgres semantics, including
// the (session_token, vendor_id) uniqueness.
type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[uuid.UUID]*domain.Order
	attempts map[uuid.UUID]*domain.PaymentAttempt
	refunds  map[uuid.UUID]*domain.RefundRequest
	sessions map[string]*domain.CheckoutSession
	outbox   []*OutboxEvent
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[uuid.UUID]*domain.Order),
		attempts: make(map[uuid.UUID]*domain.PaymentAttempt),
		refunds:  make(map[uuid.UUID]*domain.RefundRequest),
		sessions: make(map[string]*domain.CheckoutSession),
	}
}

func (m *MemoryStore) RunMigrations(*Credentials) error { return nil }
func (m *MemoryStore) Close() error                     { return nil }

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	cp.StatusHistory = append([]domain.StatusEvent(nil), o.StatusHistory...)
	return &cp
}

func (m *MemoryStore) CreateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orders {
		if existing.SessionToken == order.SessionToken && existing.VendorID == order.VendorID {
			return ErrDuplicateSubmission
		}
	}
	m.orders[order.ID] = copyOrder(order)
	m.appendOutboxLocked(order, "order.created")
	return nil
}

func (m *MemoryStore) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (m *MemoryStore) GetOrderByNumber(_ context.Context, number string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.OrderNumber == number {
			return copyOrder(o), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *MemoryStore) GetOrderBySubmission(_ context.Context, sessionToken, vendorID string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.SessionToken == sessionToken && o.VendorID == vendorID {
			return copyOrder(o), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *MemoryStore) ListOrders(_ context.Context, userID string, f domain.OrderFilter) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.UserID != userID {
			continue
		}
		if f.Status != "" && o.Status() != f.Status {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, copyOrder(o))
	}
	return out, nil
}

func (m *MemoryStore) AppendStatusEvent(_ context.Context, orderID uuid.UUID, ev domain.StatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.StatusHistory = append(o.StatusHistory, ev)
	switch ev.Status {
	case domain.OrderStatusCancelled:
		at := ev.At
		o.CancelledAt = &at
	case domain.OrderStatusDelivered:
		at := ev.At
		o.DeliveredAt = &at
	}
	m.appendOutboxLocked(o, "order.status_changed")
	return nil
}

func (m *MemoryStore) SetTrackingNumber(_ context.Context, orderID uuid.UUID, tracking string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.TrackingNumber = tracking
	return nil
}

func (m *MemoryStore) appendOutboxLocked(o *domain.Order, eventType string) {
	m.nextID++
	m.outbox = append(m.outbox, &OutboxEvent{
		ID:          m.nextID,
		AggregateID: o.ID.String(),
		EventType:   eventType,
		Payload:     []byte(`{"order_id":"` + o.ID.String() + `","status":"` + string(o.Status()) + `"}`),
		CreatedAt:   time.Now(),
	})
}

func (m *MemoryStore) CreateAttempt(_ context.Context, a *domain.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateAttempt(_ context.Context, a *domain.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[a.ID]; !ok {
		return ErrAttemptNotFound
	}
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAttempt(_ context.Context, id uuid.UUID) (*domain.PaymentAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) GetAttemptByProviderRef(_ context.Context, ref string) (*domain.PaymentAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.ProviderRef == ref {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAttemptNotFound
}

func (m *MemoryStore) ListAttempts(_ context.Context, orderID uuid.UUID) ([]*domain.PaymentAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.PaymentAttempt
	for _, a := range m.attempts {
		if a.OrderID == orderID {
			cp := *a
			out = append(out, &cp)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateRefund(_ context.Context, r *domain.RefundRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.refunds[r.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateRefund(_ context.Context, r *domain.RefundRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refunds[r.ID]; !ok {
		return ErrRefundNotFound
	}
	cp := *r
	m.refunds[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRefund(_ context.Context, id uuid.UUID) (*domain.RefundRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.refunds[id]
	if !ok {
		return nil, ErrRefundNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) GetOpenRefundByOrder(_ context.Context, orderID uuid.UUID) (*domain.RefundRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.refunds {
		if r.OrderID == orderID && r.Status.IsOpen() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrRefundNotFound
}

func copySession(s *domain.CheckoutSession) *domain.CheckoutSession {
	cp := *s
	if s.Snapshot != nil {
		snap := *s.Snapshot
		snap.Lines = append([]domain.CartLine(nil), s.Snapshot.Lines...)
		cp.Snapshot = &snap
	}
	return &cp
}

func (m *MemoryStore) CreateSession(_ context.Context, s *domain.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = copySession(s)
	return nil
}

func (m *MemoryStore) GetSessionByToken(_ context.Context, token string) (*domain.CheckoutSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copySession(s), nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, s *domain.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.Token]; !ok {
		return ErrSessionNotFound
	}
	m.sessions[s.Token] = copySession(s)
	return nil
}

func (m *MemoryStore) FailStaleSubmitting(_ context.Context, maxAge time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	cutoff := time.Now().Add(-maxAge)
	for _, s := range m.sessions {
		if s.Status == domain.CheckoutStatusSubmitting && s.UpdatedAt.Before(cutoff) {
			s.Status = domain.CheckoutStatusFailed
			s.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*OutboxEvent
	for _, ev := range m.outbox {
		if ev.ProcessedAt == nil {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.outbox {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			return nil
		}
	}
	return nil
}

// MemoryCartRepository backs CartRepository for tests and demo mode.
type MemoryCartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
	err   error
}

func NewMemoryCartRepository() *MemoryCartRepository {
	return &MemoryCartRepository{carts: make(map[string]*domain.Cart)}
}

// FailWith makes subsequent writes return err; used to simulate the
// remote store rejecting a mutation in rollback tests.
func (m *MemoryCartRepository) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func copyCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Lines = append([]domain.CartLine(nil), c.Lines...)
	return &cp
}

func (m *MemoryCartRepository) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return copyCart(c), nil
}

func (m *MemoryCartRepository) UpsertCart(_ context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.carts[cart.UserID] = copyCart(cart)
	return nil
}

func (m *MemoryCartRepository) DeleteCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.carts, userID)
	return nil
}

// MemoryAddressRepository backs AddressRepository for tests and demo mode.
type MemoryAddressRepository struct {
	mu    sync.RWMutex
	books map[string][]domain.DeliveryAddress
}

func NewMemoryAddressRepository() *MemoryAddressRepository {
	return &MemoryAddressRepository{books: make(map[string][]domain.DeliveryAddress)}
}

func (m *MemoryAddressRepository) ListAddresses(_ context.Context, userID string) ([]domain.DeliveryAddress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.DeliveryAddress(nil), m.books[userID]...), nil
}

func (m *MemoryAddressRepository) SaveAddresses(_ context.Context, userID string, book []domain.DeliveryAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[userID] = append([]domain.DeliveryAddress(nil), book...)
	return nil
}
