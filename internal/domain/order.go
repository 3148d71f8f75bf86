package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "PENDING"
	OrderStatusConfirmed      OrderStatus = "CONFIRMED"
	OrderStatusProcessing     OrderStatus = "PROCESSING"
	OrderStatusShipped        OrderStatus = "SHIPPED"
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusRefunded       OrderStatus = "REFUNDED"
	OrderStatusFailed         OrderStatus = "FAILED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusFailed, OrderStatusCancelled},
	OrderStatusConfirmed:      {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:     {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:        {OrderStatusOutForDelivery},
	OrderStatusOutForDelivery: {OrderStatusDelivered},
	OrderStatusDelivered:      {OrderStatusRefunded},
}

// CanTransitionTo reports whether the order status machine allows
// from -> to. Anything outside the table is a contract violation on the
// caller's side, not a user error.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded || s == OrderStatusFailed
}

// Cancellable statuses are the only ones a customer may cancel from.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed || s == OrderStatusProcessing
}

// ParseOrderStatus rejects any value outside the enumerated set; used at
// the boundary where external data enters the system.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	s := OrderStatus(raw)
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusOutForDelivery, OrderStatusDelivered,
		OrderStatusCancelled, OrderStatusRefunded, OrderStatusFailed:
		return s, true
	}
	return "", false
}

type ActorKind string

const (
	ActorCustomer ActorKind = "CUSTOMER"
	ActorSystem   ActorKind = "SYSTEM"
	ActorOperator ActorKind = "OPERATOR"
)

// StatusEvent is one entry of the append-only status ledger. Events are
// never edited or deleted.
type StatusEvent struct {
	Status OrderStatus `json:"status"`
	At     time.Time   `json:"at"`
	Actor  ActorKind   `json:"actor"`
	Note   string      `json:"note,omitempty"`
}

// OrderItem is an immutable copy of the cart line that produced it; the
// price is locked at confirmation time.
type OrderItem struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	ListPrice float64 `json:"list_price,omitempty"`
	Quantity  int     `json:"quantity"`
}

// Order is one vendor's slice of a checkout. A multi-vendor checkout fans
// out into one order per vendor group.
type Order struct {
	ID             uuid.UUID      `json:"id"`
	OrderNumber    string         `json:"order_number"`
	UserID         string         `json:"user_id"`
	VendorID       string         `json:"vendor_id"`
	SessionToken   string         `json:"session_token"`
	Items          []OrderItem    `json:"items"`
	Breakdown      PriceBreakdown `json:"breakdown"` // frozen at confirmation time
	Currency       string         `json:"currency"`
	TrackingNumber string         `json:"tracking_number,omitempty"`
	StatusHistory  []StatusEvent  `json:"status_history"`
	CreatedAt      time.Time      `json:"created_at"`
	CancelledAt    *time.Time     `json:"cancelled_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
}

// Status derives the current status from the ledger; the ledger is the
// only source of truth.
func (o *Order) Status() OrderStatus {
	if len(o.StatusHistory) == 0 {
		return OrderStatusPending
	}
	return o.StatusHistory[len(o.StatusHistory)-1].Status
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status OrderStatus
	From   *time.Time
	To     *time.Time
}
