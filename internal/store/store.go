// Package store définit la persistance du checkout (adresses, coupons, intents, commandes)
// avec une implémentation ScyllaDB et une implémentation en mémoire.
package store

import (
	"context"
	"errors"

	"cedra_checkout/internal/models"
)

var (
	ErrNotFound = errors.New("introuvable")
	ErrConflict = errors.New("existe déjà")
)

type AddressStore interface {
	ListAddresses(ctx context.Context, userID string) ([]models.Address, error)
	GetAddress(ctx context.Context, userID, addressID string) (*models.Address, error)
	CreateAddress(ctx context.Context, addr *models.Address) error
	UpdateAddress(ctx context.Context, addr *models.Address) error
}

type CouponStore interface {
	GetCoupon(ctx context.Context, code string) (*models.Coupon, error)
	ListCoupons(ctx context.Context) ([]models.Coupon, error)
	CreateCoupon(ctx context.Context, coupon *models.Coupon) error
	UpdateCoupon(ctx context.Context, code string, upd models.CouponUpdate) (*models.Coupon, error)
	DeleteCoupon(ctx context.Context, code string) error
	CountUsage(ctx context.Context, code, userID string) (int, error)
	RecordUsage(ctx context.Context, usage models.CouponUsage) error
}

type IntentStore interface {
	SaveIntent(ctx context.Context, intent models.PaymentIntent) error
	GetIntent(ctx context.Context, gatewayOrderID string) (*models.PaymentIntent, error)
}

type OrderStore interface {
	// InsertOrderIfAbsent crée la commande une seule fois par GatewayOrderID.
	// Si une commande existe déjà pour cette clé, elle est renvoyée avec created=false.
	InsertOrderIfAbsent(ctx context.Context, order *models.Order) (*models.Order, bool, error)
	GetOrder(ctx context.Context, userID, orderID string) (*models.Order, error)
	GetOrderByGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.Order, error)
}

// Store regroupe toutes les interfaces.
type Store interface {
	AddressStore
	CouponStore
	IntentStore
	OrderStore
}
