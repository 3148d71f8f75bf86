package cache

import (
	"context"
	"errors"

	"github.com/okoshkin/go_market/internal/domain"
)

// CartCache fronts the remote cart store. Consumers define this
// interface, not the Redis implementation.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")
