// Package cache keeps a Redis read-through copy of orders looked up by number.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
)

const keyPrefix = "fulfillment:order:number:"

// OrderRepository decorates an order.Repository. Every write invalidates the cached entry.
type OrderRepository struct {
	order.Repository
	rdb redis.Cmdable
	ttl time.Duration
	log observability.Logger
}

func NewOrderRepository(next order.Repository, rdb redis.Cmdable, ttl time.Duration, log observability.Logger) *OrderRepository {
	if log == nil {
		log = observability.NopLogger()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OrderRepository{
		Repository: next,
		rdb:        rdb,
		ttl:        ttl,
		log:        log.With(observability.F("component", "order_cache")),
	}
}

func Key(orderNumber string) string { return keyPrefix + orderNumber }

func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (*order.Order, error) {
	key := Key(orderNumber)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var o order.Order
		jErr := json.Unmarshal(raw, &o)
		if jErr == nil {
			return &o, nil
		}
		r.warn(ctx, "order_cache_decode_failed", key, jErr)
	case !errors.Is(err, redis.Nil):
		r.warn(ctx, "order_cache_get_failed", key, err)
	}

	o, err := r.Repository.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if payload, jErr := json.Marshal(o); jErr == nil {
		if sErr := r.rdb.Set(ctx, key, string(payload), r.ttl).Err(); sErr != nil {
			r.warn(ctx, "order_cache_set_failed", key, sErr)
		}
	}
	return o, nil
}

func (r *OrderRepository) Insert(ctx context.Context, o *order.Order) error {
	if err := r.Repository.Insert(ctx, o); err != nil {
		return err
	}
	r.invalidate(ctx, o.OrderNumber)
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	if err := r.Repository.Update(ctx, o); err != nil {
		return err
	}
	r.invalidate(ctx, o.OrderNumber)
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	o, getErr := r.Repository.Get(ctx, id)
	if err := r.Repository.Delete(ctx, id); err != nil {
		return err
	}
	if getErr == nil {
		r.invalidate(ctx, o.OrderNumber)
	}
	return nil
}

func (r *OrderRepository) invalidate(ctx context.Context, orderNumber string) {
	key := Key(orderNumber)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		r.warn(ctx, "order_cache_invalidate_failed", key, err)
	}
}

func (r *OrderRepository) warn(ctx context.Context, msg, key string, err error) {
	logctx.FromOr(ctx, r.log).Warn(msg, observability.F("key", key), observability.F("error", err))
}
