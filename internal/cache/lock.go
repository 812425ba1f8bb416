package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Ne supprime la clé que si elle porte encore notre jeton.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CommitLocker sérialise les commits concurrents d'un même gatewayOrderId.
type CommitLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCommitLocker(client *redis.Client, ttl time.Duration) *CommitLocker {
	return &CommitLocker{client: client, ttl: ttl}
}

// Acquire pose le verrou (SET NX + TTL). ErrLockHeld si un autre commit est en cours.
func (l *CommitLocker) Acquire(ctx context.Context, gatewayOrderID string) (release func(), err error) {
	key := commitLockKey(gatewayOrderID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx verrou: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return func() {
		// le contexte de l'appelant peut être annulé ; la libération doit passer quand même
		releaseScript.Run(context.Background(), l.client, []string{key}, token)
	}, nil
}

// AcquireWait réessaie jusqu'à obtenir le verrou ou l'expiration du contexte.
func (l *CommitLocker) AcquireWait(ctx context.Context, gatewayOrderID string, every time.Duration) (func(), error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		release, err := l.Acquire(ctx, gatewayOrderID)
		if err != ErrLockHeld {
			return release, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
