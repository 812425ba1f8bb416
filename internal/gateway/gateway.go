// Package gateway parle aux passerelles de paiement (Razorpay, Stripe) : création de
// l'intent avant l'ouverture de l'UI, puis vérification serveur de la preuve.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"cedra_checkout/internal/config"
	"cedra_checkout/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrGatewayUnavailable = errors.New("passerelle de paiement indisponible")
	ErrProofInvalid       = errors.New("preuve de paiement invalide")
)

// Provider est implémenté par chaque passerelle.
type Provider interface {
	Name() string
	// CreateOrder réserve le montant auprès de la passerelle (amount en roupies).
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (models.PaymentIntent, error)
	// Verify renvoie nil seulement si la preuve correspond à l'intent enregistré.
	Verify(ctx context.Context, proof models.PaymentProof, intent models.PaymentIntent) error
}

// New construit le fournisseur choisi par PAYMENT_PROVIDER.
func New(cfg *config.Config) (Provider, error) {
	switch cfg.PaymentProvider {
	case "razorpay":
		return NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayBaseURL, nil), nil
	case "stripe":
		return NewStripe(cfg.StripeSecretKey, nil), nil
	default:
		return nil, fmt.Errorf("PAYMENT_PROVIDER inconnu: %q", cfg.PaymentProvider)
	}
}

func unavailable(provider string, err error) error {
	return fmt.Errorf("%w (%s): %v", ErrGatewayUnavailable, provider, err)
}
