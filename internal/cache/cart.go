package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"cedra_checkout/internal/models"

	"github.com/redis/go-redis/v9"
)

// storedCart est le format JSON de cart:<userID>.
type storedCart struct {
	Items     []models.CartItem `json:"items"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type CartStore struct {
	client  *redis.Client
	baseTTL time.Duration
	now     func() time.Time
}

func NewCartStore(client *redis.Client) *CartStore {
	return &CartStore{
		client:  client,
		baseTTL: 7 * 24 * time.Hour,
		now:     time.Now,
	}
}

// Snapshot renvoie la vue figée du panier. Un panier absent est vide, pas une erreur.
func (c *CartStore) Snapshot(ctx context.Context, userID string) (models.CartSnapshot, error) {
	data, err := c.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewCartSnapshot(nil, c.now()), nil
	}
	if err != nil {
		return models.CartSnapshot{}, fmt.Errorf("redis get panier: %w", err)
	}

	var cart storedCart
	if err := json.Unmarshal(data, &cart); err != nil {
		return models.CartSnapshot{}, fmt.Errorf("unmarshal panier: %w", err)
	}
	return models.NewCartSnapshot(cart.Items, c.now()), nil
}

func (c *CartStore) Set(ctx context.Context, userID string, items []models.CartItem) error {
	data, err := json.Marshal(storedCart{Items: items, UpdatedAt: c.now()})
	if err != nil {
		return fmt.Errorf("marshal panier: %w", err)
	}

	jitter := time.Duration(rand.Intn(60)) * time.Minute
	if err := c.client.Set(ctx, cartKey(userID), data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set panier: %w", err)
	}
	return nil
}

func (c *CartStore) Clear(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del panier: %w", err)
	}
	return nil
}
