package checkout

import (
	"context"

	"cedra_checkout/internal/models"
	"cedra_checkout/internal/reconcile"

	"github.com/shopspring/decimal"
)

// Backend est la vue qu'a l'orchestrateur de l'API REST de checkout.
// Les erreurs renvoyées doivent être des *Error pour que leur catégorie soit conservée.
type Backend interface {
	ListAddresses(ctx context.Context) ([]models.Address, error)
	CreateAddress(ctx context.Context, draft models.Address) (*models.Address, error)
	UpdateAddress(ctx context.Context, addressID string, upd models.AddressUpdate) (*models.Address, error)

	ListCoupons(ctx context.Context) ([]models.Coupon, error)
	ApplyCoupon(ctx context.Context, code string, orderTotal decimal.Decimal) (models.AppliedCoupon, error)

	CreatePaymentIntent(ctx context.Context, req models.IntentRequest) (models.PaymentIntent, error)
	VerifyPayment(ctx context.Context, proof models.PaymentProof, draft models.OrderDraft) (*models.Order, error)
	PlaceCashOnDelivery(ctx context.Context, draft models.OrderDraft) (*models.Order, error)
}

// Cart est le panier de l'utilisateur authentifié.
type Cart interface {
	Snapshot(ctx context.Context) (models.CartSnapshot, error)
	Clear(ctx context.Context) error
}

// Journal reçoit les paiements réussis dont le commit a échoué.
type Journal interface {
	Record(e reconcile.Entry) (*reconcile.Entry, error)
	MarkResolved(gatewayOrderID, orderID string) (*reconcile.Entry, error)
}

// backendBook expose les adresses du Backend comme un address.Book.
type backendBook struct {
	backend Backend
}

func (b backendBook) List(ctx context.Context) ([]models.Address, error) {
	return b.backend.ListAddresses(ctx)
}

func (b backendBook) Create(ctx context.Context, draft models.Address) (*models.Address, error) {
	return b.backend.CreateAddress(ctx, draft)
}

func (b backendBook) SetDefault(ctx context.Context, addressID string, isDefault bool) error {
	_, err := b.backend.UpdateAddress(ctx, addressID, models.AddressUpdate{IsDefault: &isDefault})
	return err
}
