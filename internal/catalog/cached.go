package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Christophe-THEVENET/greengoodies/domain"
)

// CachedCatalog is a read-through redis cache in front of another Catalog.
// Lookups of the same product collapse through singleflight, and the
// underlying store is guarded by a circuit breaker.
type CachedCatalog struct {
	inner   Catalog
	client  *redis.Client
	baseTTL time.Duration
	sfg     singleflight.Group
	breaker *gobreaker.CircuitBreaker[*domain.Product]
	log     *zap.Logger
}

func NewCachedCatalog(inner Catalog, client *redis.Client, log *zap.Logger) *CachedCatalog {
	cb := gobreaker.NewCircuitBreaker[*domain.Product](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 3,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// An unknown product id is an answer from the store, not a store
		// failure. Only infrastructure errors may trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrProductNotFound)
		},
	})

	return &CachedCatalog{
		inner:   inner,
		client:  client,
		baseTTL: 15 * time.Minute,
		breaker: cb,
		log:     log,
	}
}

func (c *CachedCatalog) Find(ctx context.Context, productID int64) (*domain.Product, error) {
	key := productKey(productID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var p domain.Product
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal cached product: %w", err)
		}
		return &p, nil
	}
	if !errors.Is(err, redis.Nil) {
		// Cache trouble is not fatal for a read, fall through to the store.
		c.log.Warn("catalog cache get failed", zap.Error(err))
	}

	v, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		p, err := c.breaker.Execute(func() (*domain.Product, error) {
			return c.inner.Find(ctx, productID)
		})
		if err != nil {
			return nil, err
		}

		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.fill(fillCtx, key, p); err != nil {
				c.log.Warn("catalog cache set failed", zap.Error(err))
			}
		}()

		return p, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Product), nil
}

func (c *CachedCatalog) List(ctx context.Context) ([]*domain.Product, error) {
	return c.inner.List(ctx)
}

func (c *CachedCatalog) fill(ctx context.Context, key string, p *domain.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := c.client.Set(ctx, key, data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func productKey(productID int64) string {
	return fmt.Sprintf("product:%d", productID)
}
