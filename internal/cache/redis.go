package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/okoshkin/go_market/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	cartKeyPrefix = "cart:"

	cartTTL   = 15 * time.Minute
	ttlSpread = 4 * time.Minute
)

// RedisCache keeps the priced cart document hot in front of Mongo.
// Entries expire within [cartTTL, cartTTL+ttlSpread) so a burst of carts
// written together does not expire together.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("decode cached cart: %w", err)
	}
	return &cart, nil
}

func (r *RedisCache) Set(ctx context.Context, userID string, cart *domain.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := r.client.Set(ctx, cartKey(userID), raw, jitteredTTL()).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func jitteredTTL() time.Duration {
	return cartTTL + time.Duration(rand.Int63n(int64(ttlSpread)))
}

func cartKey(userID string) string {
	return cartKeyPrefix + userID
}
