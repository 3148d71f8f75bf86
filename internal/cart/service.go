package cart

import (
	"context"
	"errors"
	"time"

	"github.com/okoshkin/go_market/internal/cache"
	"github.com/okoshkin/go_market/internal/coupon"
	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/pricing"
	"github.com/okoshkin/go_market/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// View is the read-only cart projection handed to the presentation layer:
// lines grouped by vendor plus the computed breakdown. Removal reports a
// coupon that was detached by revalidation.
type View struct {
	Groups    []domain.VendorGroup  `json:"groups"`
	Breakdown domain.PriceBreakdown `json:"breakdown"`
	Coupon    *domain.AppliedCoupon `json:"coupon,omitempty"`
	Removal   *coupon.Removal       `json:"-"`
}

// Service applies cart mutations optimistically against the local
// aggregate and persists them to the remote cart store; a remote
// rejection rolls the aggregate back to the exact prior state.
type Service struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	coupons  *coupon.Validator
	rule     domain.DeliveryRule
	currency string
	logger   *zap.Logger
	sfg      singleflight.Group
}

func NewService(repo repository.CartRepository, c cache.CartCache, coupons *coupon.Validator, rule domain.DeliveryRule, currency string, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    c,
		coupons:  coupons,
		rule:     rule,
		currency: currency,
		logger:   logger,
	}
}

// GetCart reads through the cache; singleflight collapses concurrent
// misses for the same user into one repository call.
func (s *Service) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cached, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		cart, errGet := s.repo.GetCart(ctx, userID)
		if errors.Is(errGet, repository.ErrCartNotFound) {
			return &domain.Cart{
				UserID:    userID,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}, nil
		}
		if errGet != nil {
			return nil, errGet
		}

		go func() {
			if errSet := s.cache.Set(context.Background(), userID, cart); errSet != nil {
				s.logger.Warn("cache set failed", zap.String("user_id", userID), zap.Error(errSet))
			}
		}()
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// View builds the grouped, priced cart projection. An applied coupon is
// revalidated against the fresh snapshot first; if it no longer
// qualifies, it is detached and reported rather than silently changing
// the total.
func (s *Service) View(ctx context.Context, userID string, applied *domain.AppliedCoupon) (*View, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap := pricing.Snapshot(cart.Lines, s.currency)
	snap.CapturedAt = time.Now()

	kept, removal, err := s.coupons.Revalidate(ctx, applied, snap)
	if err != nil {
		return nil, err
	}
	if removal != nil {
		s.logger.Info("coupon detached on revalidation",
			zap.String("user_id", userID),
			zap.String("code", removal.Code),
			zap.Error(removal.Reason))
	}

	return &View{
		Groups:    pricing.GroupByVendor(cart.Lines),
		Breakdown: pricing.ComputeBreakdown(cart.Lines, kept, s.rule),
		Coupon:    kept,
		Removal:   removal,
	}, nil
}

// mutate runs one aggregator operation optimistically and persists the
// result; on remote rejection the exact prior cart is restored and
// returned with the error.
func (s *Service) mutate(ctx context.Context, userID string, op func(*Aggregator) error) (*domain.Cart, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	agg := NewAggregator(cart.Lines)
	if err := op(agg); err != nil {
		return cart, err
	}

	cart.Lines = agg.Lines()
	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		s.logger.Warn("remote cart rejected mutation, rolling back",
			zap.String("user_id", userID), zap.Error(err))
		if rbErr := agg.RollbackLast(); rbErr != nil {
			return nil, rbErr
		}
		cart.Lines = agg.Lines()
		return cart, err
	}

	s.invalidateCache(userID)
	return cart, nil
}

func (s *Service) AddItem(ctx context.Context, userID string, line domain.CartLine) (*domain.Cart, error) {
	return s.mutate(ctx, userID, func(a *Aggregator) error { return a.AddItem(line) })
}

func (s *Service) UpdateQuantity(ctx context.Context, userID, lineID string, qty int) (*domain.Cart, error) {
	return s.mutate(ctx, userID, func(a *Aggregator) error { return a.UpdateQuantity(lineID, qty) })
}

func (s *Service) RemoveItem(ctx context.Context, userID, lineID string) (*domain.Cart, error) {
	return s.mutate(ctx, userID, func(a *Aggregator) error { return a.RemoveItem(lineID) })
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.DeleteCart(ctx, userID); err != nil {
		return err
	}
	s.invalidateCache(userID)
	return nil
}

func (s *Service) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
