package cart

import (
	"errors"

	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/pricing"
)

var (
	ErrLineNotFound    = errors.New("cart line not found")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrItemUnavailable = errors.New("item is unavailable, quantity cannot increase")
	ErrNothingToUndo   = errors.New("no mutation to roll back")
)

// Aggregator owns the cart lines and applies mutations locally. Every
// mutation records the exact prior lines so a remote rejection can roll
// back to precisely what the cart held before, not a recomputed
// approximation.
type Aggregator struct {
	lines []domain.CartLine
	undo  [][]domain.CartLine
}

func NewAggregator(lines []domain.CartLine) *Aggregator {
	return &Aggregator{lines: append([]domain.CartLine(nil), lines...)}
}

// Lines returns a copy of the current lines; unavailable items stay
// visible.
func (a *Aggregator) Lines() []domain.CartLine {
	return append([]domain.CartLine(nil), a.lines...)
}

func (a *Aggregator) checkpoint() {
	a.undo = append(a.undo, append([]domain.CartLine(nil), a.lines...))
}

// RollbackLast restores the cart exactly as it was before the most recent
// mutation.
func (a *Aggregator) RollbackLast() error {
	if len(a.undo) == 0 {
		return ErrNothingToUndo
	}
	a.lines = a.undo[len(a.undo)-1]
	a.undo = a.undo[:len(a.undo)-1]
	return nil
}

// AddItem appends a new line or merges quantity into an existing line for
// the same product and vendor.
func (a *Aggregator) AddItem(line domain.CartLine) error {
	if line.Quantity < 1 {
		return ErrInvalidQuantity
	}
	a.checkpoint()
	for i, l := range a.lines {
		if l.ProductID == line.ProductID && l.VendorID == line.VendorID {
			if !l.Available {
				a.undo = a.undo[:len(a.undo)-1]
				return ErrItemUnavailable
			}
			a.lines[i].Quantity += line.Quantity
			return nil
		}
	}
	a.lines = append(a.lines, line)
	return nil
}

// UpdateQuantity sets a line's quantity. A quantity of zero or less is
// equivalent to removing the line, by policy. Increasing the quantity of
// an unavailable item is blocked; decreasing is always permitted.
func (a *Aggregator) UpdateQuantity(lineID string, qty int) error {
	if qty <= 0 {
		return a.RemoveItem(lineID)
	}
	for i, l := range a.lines {
		if l.ID == lineID {
			if qty > l.Quantity && !l.Available {
				return ErrItemUnavailable
			}
			a.checkpoint()
			a.lines[i].Quantity = qty
			return nil
		}
	}
	return ErrLineNotFound
}

func (a *Aggregator) RemoveItem(lineID string) error {
	for i, l := range a.lines {
		if l.ID == lineID {
			a.checkpoint()
			a.lines = append(a.lines[:i], a.lines[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

func (a *Aggregator) Clear() {
	a.checkpoint()
	a.lines = nil
}

// GroupByVendor recomputes vendor groups on every call; an emptied group
// simply does not appear.
func (a *Aggregator) GroupByVendor() []domain.VendorGroup {
	return pricing.GroupByVendor(a.lines)
}

func (a *Aggregator) Snapshot(currency string) domain.CartSnapshot {
	return pricing.Snapshot(a.lines, currency)
}

func (a *Aggregator) Breakdown(coupon *domain.AppliedCoupon, rule domain.DeliveryRule) domain.PriceBreakdown {
	return pricing.ComputeBreakdown(a.lines, coupon, rule)
}
