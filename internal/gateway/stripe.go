package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cedra_checkout/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
)

// Stripe : la preuve porte l'id du PaymentIntent dans GatewayOrderID et PaymentID,
// et le client_secret dans Signature.
type Stripe struct {
	client  paymentintent.Client
	breaker *gobreaker.CircuitBreaker[*stripe.PaymentIntent]
	now     func() time.Time
}

// NewStripe : backend nil utilise l'API Stripe publique.
func NewStripe(secretKey string, backend stripe.Backend) *Stripe {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Stripe{
		client:  paymentintent.Client{B: backend, Key: secretKey},
		breaker: newBreaker[*stripe.PaymentIntent]("stripe"),
		now:     time.Now,
	}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(models.MinorUnits(amount)),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{"receipt": receipt},
	}
	params.Context = ctx

	pi, err := s.breaker.Execute(func() (*stripe.PaymentIntent, error) {
		return classify(s.client.New(params))
	})
	if err != nil {
		log.Printf("❌ Erreur Stripe: %v", err)
		return models.PaymentIntent{}, unavailable(s.Name(), err)
	}

	log.Printf("💳 PaymentIntent Stripe créé: %s", pi.ID)
	return models.PaymentIntent{
		GatewayOrderID: pi.ID,
		Amount:         models.FromMinorUnits(pi.Amount),
		Currency:       strings.ToUpper(string(pi.Currency)),
		Provider:       s.Name(),
		ClientSecret:   pi.ClientSecret,
		CreatedAt:      s.now(),
	}, nil
}

// Verify relit le PaymentIntent : il doit être succeeded, du bon montant, et le secret doit correspondre.
func (s *Stripe) Verify(ctx context.Context, proof models.PaymentProof, intent models.PaymentIntent) error {
	if proof.GatewayOrderID != intent.GatewayOrderID {
		return fmt.Errorf("%w: intent %s ≠ %s", ErrProofInvalid, proof.GatewayOrderID, intent.GatewayOrderID)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.breaker.Execute(func() (*stripe.PaymentIntent, error) {
		return classify(s.client.Get(proof.GatewayOrderID, params))
	})
	if err != nil {
		var r rejected
		if errors.As(err, &r) {
			return fmt.Errorf("%w: %v", ErrProofInvalid, err)
		}
		return unavailable(s.Name(), err)
	}

	switch {
	case pi.Status != stripe.PaymentIntentStatusSucceeded:
		return fmt.Errorf("%w: statut %s", ErrProofInvalid, pi.Status)
	case pi.Amount != models.MinorUnits(intent.Amount):
		return fmt.Errorf("%w: montant %d ≠ %d", ErrProofInvalid, pi.Amount, models.MinorUnits(intent.Amount))
	case intent.ClientSecret != "" && proof.Signature != intent.ClientSecret:
		return fmt.Errorf("%w: client secret", ErrProofInvalid)
	}
	return nil
}

// classify marque les erreurs 4xx de Stripe comme des refus.
func classify(pi *stripe.PaymentIntent, err error) (*stripe.PaymentIntent, error) {
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.HTTPStatusCode >= 400 && serr.HTTPStatusCode < 500 {
		return nil, rejected{err}
	}
	return pi, err
}
