package address

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cedra_checkout/internal/models"
	"cedra_checkout/internal/store"

	"github.com/google/uuid"
)

const (
	promoteLockWait  = 5 * time.Second
	promoteLockRetry = 20 * time.Millisecond
)

var ErrPromotionBusy = errors.New("changement d'adresse par défaut déjà en cours")

// Locker est satisfait par cache.CommitLocker.
type Locker interface {
	AcquireWait(ctx context.Context, key string, every time.Duration) (func(), error)
}

// StoreBook adapte un store.AddressStore au carnet d'un utilisateur.
// Avec Lock, les promotions d'un même utilisateur sont sérialisées.
type StoreBook struct {
	Store  store.AddressStore
	UserID string
	Now    func() time.Time
	Lock   Locker
}

func promoteLockKey(userID string) string {
	return "address-default:" + userID
}

func (b StoreBook) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b StoreBook) List(ctx context.Context) ([]models.Address, error) {
	return b.Store.ListAddresses(ctx, b.UserID)
}

func (b StoreBook) Create(ctx context.Context, draft models.Address) (*models.Address, error) {
	now := b.now()
	draft.ID = uuid.NewString()
	draft.UserID = b.UserID
	draft.CreatedAt = now
	draft.UpdatedAt = now
	if err := b.Store.CreateAddress(ctx, &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

func (b StoreBook) SetDefault(ctx context.Context, addressID string, isDefault bool) error {
	a, err := b.Store.GetAddress(ctx, b.UserID, addressID)
	if err != nil {
		return err
	}
	a.IsDefault = isDefault
	a.UpdatedAt = b.now()
	return b.Store.UpdateAddress(ctx, a)
}

// Update applique une modification ; isDefault=true passe par Promote.
func (b StoreBook) Update(ctx context.Context, addressID string, upd models.AddressUpdate) (*models.Address, error) {
	current, err := b.Store.GetAddress(ctx, b.UserID, addressID)
	if err != nil {
		return nil, err
	}

	promote := upd.IsDefault != nil && *upd.IsDefault
	if !upd.OnlyDefaultFlag() {
		next := *current
		upd.Apply(&next)
		next.IsDefault = current.IsDefault
		if upd.IsDefault != nil && !*upd.IsDefault {
			next.IsDefault = false
		}
		if err := Validate(next); err != nil {
			return nil, err
		}
		next.UpdatedAt = b.now()
		if err := b.Store.UpdateAddress(ctx, &next); err != nil {
			return nil, err
		}
	} else if !promote && current.IsDefault {
		if err := b.SetDefault(ctx, addressID, false); err != nil {
			return nil, err
		}
	}

	if promote {
		if err := b.Promote(ctx, addressID); err != nil {
			return nil, err
		}
	}
	return b.Store.GetAddress(ctx, b.UserID, addressID)
}

// Promote appelle Promote sous le verrou de l'utilisateur quand Lock est posé.
func (b StoreBook) Promote(ctx context.Context, addressID string) error {
	if b.Lock != nil {
		lockCtx, cancel := context.WithTimeout(ctx, promoteLockWait)
		release, err := b.Lock.AcquireWait(lockCtx, promoteLockKey(b.UserID), promoteLockRetry)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return ErrPromotionBusy
			}
			return fmt.Errorf("verrou adresse par défaut: %w", err)
		}
		defer release()
	}
	return Promote(ctx, b, addressID)
}
