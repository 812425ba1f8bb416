// Package checkout orchestre une tentative de checkout côté client : adresse, coupon,
// détail de paiement, passerelle puis commit, avec une reprise dédiée après paiement.
package checkout

import (
	"fmt"

	"cedra_checkout/internal/models"
)

type State string

const (
	StateBuilding        State = "BUILDING"
	StateAddressReady    State = "ADDRESS_READY"
	StatePriceReady      State = "PRICE_READY"
	StateAwaitingPayment State = "AWAITING_PAYMENT"
	StateCommitting      State = "COMMITTING"
	StateCommitted       State = "COMMITTED"
	StateFailed          State = "FAILED"
)

var transitions = map[State][]State{
	StateBuilding:        {StateAddressReady, StateFailed},
	StateAddressReady:    {StatePriceReady, StateFailed},
	StatePriceReady:      {StatePriceReady, StateAwaitingPayment, StateFailed},
	StateAwaitingPayment: {StateCommitting, StateFailed},
	StateCommitting:      {StateCommitted, StateFailed},
	// seule sortie de Failed : rejouer le commit après un paiement réussi
	StateFailed: {StateCommitting},
}

func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) IsTerminal() bool {
	return s == StateCommitted || s == StateFailed
}

func (s State) String() string { return string(s) }

// CheckoutSession est l'état possédé par une tentative ; seules les transitions de la machine le modifient.
type CheckoutSession struct {
	UserID    string
	State     State
	Cart      models.CartSnapshot
	Addresses []models.Address
	Coupons   []models.Coupon
	AddressID string

	Coupon      *models.AppliedCoupon
	CouponError *Error // coupon refusé : la tentative continue sans réduction

	Breakdown     models.PaymentBreakdown
	PaymentMethod string
	Intent        *models.PaymentIntent
	Proof         *models.PaymentProof
	Order         *models.Order
	Failure       *Error
}

func newSession(userID string) *CheckoutSession {
	return &CheckoutSession{UserID: userID, State: StateBuilding}
}

func (s *CheckoutSession) transition(next State) error {
	if !s.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s → %s", ErrIllegalTransition, s.State, next)
	}
	s.State = next
	return nil
}

// fail passe en Failed ; une transition illégale ici est un bug de la machine.
func (s *CheckoutSession) fail(err *Error) *Error {
	if terr := s.transition(StateFailed); terr != nil {
		panic(terr)
	}
	s.Failure = err
	return err
}

// Paid indique qu'une preuve de paiement a été reçue : tout échec ultérieur est irréversible.
func (s *CheckoutSession) Paid() bool {
	return s.Proof != nil
}

// Draft est le brouillon figé envoyé au commit ; identique à chaque rejeu.
func (s *CheckoutSession) Draft() models.OrderDraft {
	code := ""
	if s.Coupon != nil {
		code = s.Coupon.Code
	}
	return models.OrderDraft{
		Products:         s.Cart.Lines(),
		ShippingAddress:  s.AddressID,
		PaymentMethod:    s.PaymentMethod,
		PaymentBreakdown: s.Breakdown,
		CouponCode:       code,
	}
}

// intentRequest réserve le total figé ; un coupon appliqué est réservé avec lui.
func (s *CheckoutSession) intentRequest(currency string) models.IntentRequest {
	req := models.IntentRequest{Amount: s.Breakdown.Total, Currency: currency}
	if s.Coupon != nil {
		req.CouponCode = s.Coupon.Code
		req.OrderTotal = s.Breakdown.ItemsTotal
	}
	return req
}
