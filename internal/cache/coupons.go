package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cedra_checkout/internal/models"

	"github.com/redis/go-redis/v9"
)

// CouponCatalog met en cache la liste publique des coupons.
type CouponCatalog struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCouponCatalog(client *redis.Client, ttl time.Duration) *CouponCatalog {
	return &CouponCatalog{client: client, ttl: ttl}
}

func (c *CouponCatalog) Get(ctx context.Context) ([]models.Coupon, error) {
	data, err := c.client.Get(ctx, couponCatalogKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get catalogue: %w", err)
	}

	var coupons []models.Coupon
	if err := json.Unmarshal(data, &coupons); err != nil {
		return nil, fmt.Errorf("unmarshal catalogue: %w", err)
	}
	return coupons, nil
}

func (c *CouponCatalog) Set(ctx context.Context, coupons []models.Coupon) error {
	data, err := json.Marshal(coupons)
	if err != nil {
		return fmt.Errorf("marshal catalogue: %w", err)
	}
	return c.client.Set(ctx, couponCatalogKey, data, c.ttl).Err()
}

// Invalidate est appelé quand un coupon est créé ou modifié.
func (c *CouponCatalog) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, couponCatalogKey).Err()
}
