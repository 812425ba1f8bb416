package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter compte les requêtes par clé sur une fenêtre fixe.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: int64(limit), window: window}
}

// AllowCouponApply incrémente le compteur de l'utilisateur et renvoie le nombre
// de requêtes restantes, ou ErrRateLimited une fois la limite dépassée.
func (r *RateLimiter) AllowCouponApply(ctx context.Context, userID string) (remaining int64, err error) {
	key := couponApplyKey(userID)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis rate limit: %w", err)
	}
	// la fenêtre démarre à la première requête
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return 0, fmt.Errorf("redis rate limit: %w", err)
		}
	}

	if count > r.limit {
		return 0, ErrRateLimited
	}
	return r.limit - count, nil
}

func (r *RateLimiter) Limit() int64 {
	return r.limit
}

// RetryAfter renvoie le temps restant avant la réouverture de la fenêtre.
func (r *RateLimiter) RetryAfter(ctx context.Context, userID string) time.Duration {
	ttl, err := r.client.TTL(ctx, couponApplyKey(userID)).Result()
	if err != nil || ttl < 0 {
		return r.window
	}
	return ttl
}
