package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/domain"
)

var ErrNothingToReorder = errors.New("no items from this order are available anymore")

// AvailabilityChecker answers whether products can currently be bought.
// Backed by the product catalog in production.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, productIDs []int64) (map[int64]bool, error)
}

// AllAvailable assumes every product is in stock; demo wiring only.
type AllAvailable struct{}

func (AllAvailable) CheckAvailability(_ context.Context, productIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		out[id] = true
	}
	return out, nil
}

// ReorderResult carries the cart lines to add back plus the names of
// items that could not come along.
type ReorderResult struct {
	Lines   []domain.CartLine `json:"lines"`
	Skipped []string          `json:"skipped,omitempty"`
}

// Reorder rebuilds cart lines from a past order. Items no longer
// available are skipped by name rather than failing the whole reorder.
func (s *Service) Reorder(ctx context.Context, userID string, orderID uuid.UUID, catalog AvailabilityChecker) (*ReorderResult, error) {
	order, err := s.GetForUser(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(order.Items))
	for _, it := range order.Items {
		ids = append(ids, it.ProductID)
	}
	available, err := catalog.CheckAvailability(ctx, ids)
	if err != nil {
		return nil, err
	}

	res := &ReorderResult{}
	for _, it := range order.Items {
		if !available[it.ProductID] {
			res.Skipped = append(res.Skipped, it.Name)
			continue
		}
		res.Lines = append(res.Lines, domain.CartLine{
			ID:        uuid.NewString(),
			ProductID: it.ProductID,
			VendorID:  order.VendorID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			ListPrice: it.ListPrice,
			Quantity:  it.Quantity,
			Available: true,
		})
	}
	if len(res.Lines) == 0 {
		return nil, ErrNothingToReorder
	}
	return res, nil
}
