package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cedra_checkout/internal/address"
	"cedra_checkout/internal/models"
	"cedra_checkout/internal/pricing"
	"cedra_checkout/internal/reconcile"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Request décrit ce que l'utilisateur a choisi sur l'écran de checkout.
type Request struct {
	Buyer         models.User
	Phone         string
	Address       address.Selection
	CouponCode    string
	PaymentMethod string // models.PaymentMethodOnline par défaut
}

// Machine enchaîne les étapes d'une tentative de checkout.
type Machine struct {
	backend  Backend
	cart     Cart
	gateway  Gateway
	journal  Journal
	policy   pricing.Policy
	currency string

	// GatewayTimeout borne l'attente d'un événement de la passerelle.
	GatewayTimeout time.Duration
	// CommitTimeout borne le commit ; il n'hérite pas de l'annulation de l'appelant.
	CommitTimeout time.Duration
}

func NewMachine(backend Backend, cart Cart, gateway Gateway, journal Journal, policy pricing.Policy, currency string) *Machine {
	return &Machine{
		backend:        backend,
		cart:           cart,
		gateway:        gateway,
		journal:        journal,
		policy:         policy,
		currency:       currency,
		GatewayTimeout: 15 * time.Minute,
		CommitTimeout:  30 * time.Second,
	}
}

// Run exécute une tentative complète. La session est toujours renvoyée, dans un état terminal ;
// l'erreur est la même que session.Failure.
func (m *Machine) Run(ctx context.Context, req Request) (*CheckoutSession, error) {
	s := newSession(req.Buyer.ID)

	if err := m.build(ctx, s, req); err != nil {
		return s, err
	}
	if err := m.price(ctx, s, req.CouponCode); err != nil {
		return s, err
	}

	s.PaymentMethod = req.PaymentMethod
	if s.PaymentMethod == "" {
		s.PaymentMethod = models.PaymentMethodOnline
	}
	if s.PaymentMethod != models.PaymentMethodOnline && s.PaymentMethod != models.PaymentMethodCOD {
		return s, s.fail(wrap("payment-method", KindValidation, fmt.Errorf("mode de paiement inconnu: %s", s.PaymentMethod)))
	}
	// le détail est figé à partir d'ici
	if err := s.transition(StateAwaitingPayment); err != nil {
		panic(err)
	}

	if s.PaymentMethod == models.PaymentMethodCOD {
		return s, m.placeCOD(ctx, s)
	}

	payments := NewPaymentSession(m.backend, m.gateway)
	payments.Timeout = m.GatewayTimeout
	proof, err := payments.Pay(ctx, s.intentRequest(m.currency), Prefill{
		Name:  req.Buyer.Name,
		Email: req.Buyer.Email,
		Phone: req.Phone,
	})
	if err != nil {
		return s, s.fail(classify("payment", err))
	}
	s.Intent = payments.Intent()
	s.Proof = &proof
	log.Printf("💳 Paiement reçu pour %s (order %s)", s.UserID, proof.GatewayOrderID)

	if err := s.transition(StateCommitting); err != nil {
		panic(err)
	}
	return s, m.commit(ctx, s)
}

// build : Building → AddressReady.
func (m *Machine) build(ctx context.Context, s *CheckoutSession, req Request) error {
	snap, err := m.cart.Snapshot(ctx)
	if err != nil {
		return s.fail(classify("cart", err))
	}
	if snap.IsEmpty() {
		return s.fail(wrap("cart", KindValidation, errors.New("panier vide")))
	}
	s.Cart = snap

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := m.backend.ListAddresses(gctx)
		if err != nil {
			return err
		}
		s.Addresses = list
		return nil
	})
	g.Go(func() error {
		list, err := m.backend.ListCoupons(gctx)
		if err != nil {
			log.Printf("⚠️ Catalogue de coupons indisponible: %v", err)
			return nil
		}
		s.Coupons = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return s.fail(classify("addresses", err))
	}
	if s.Addresses == nil {
		s.Addresses = []models.Address{}
	}

	id, err := address.NewResolver(backendBook{m.backend}).Resolve(ctx, req.Address, s.Addresses)
	if err != nil {
		var verr *address.ValidationError
		if errors.As(err, &verr) || errors.Is(err, address.ErrUnknownAddress) {
			return s.fail(wrap("address", KindValidation, err))
		}
		return s.fail(classify("address", err))
	}
	s.AddressID = id
	if err := s.transition(StateAddressReady); err != nil {
		panic(err)
	}
	return nil
}

// price : AddressReady → PriceReady. Un coupon refusé n'arrête pas la tentative.
func (m *Machine) price(ctx context.Context, s *CheckoutSession, code string) error {
	subtotal := s.Cart.Subtotal()
	if code != "" {
		if err := m.ApplyCoupon(ctx, s, code); err != nil {
			return err
		}
	}
	s.Breakdown = m.policy.Compose(subtotal, s.discount())
	if err := s.transition(StatePriceReady); err != nil {
		panic(err)
	}
	return nil
}

// ApplyCoupon valide code auprès du backend et recalcule le détail si la session est déjà PriceReady.
// Seules les erreurs non liées au coupon sont renvoyées (et font échouer la tentative).
func (m *Machine) ApplyCoupon(ctx context.Context, s *CheckoutSession, code string) error {
	if s.State != StateAddressReady && s.State != StatePriceReady {
		return fmt.Errorf("%w: coupon en état %s", ErrIllegalTransition, s.State)
	}

	applied, err := m.backend.ApplyCoupon(ctx, code, s.Cart.Subtotal())
	switch kind := KindOf(err); {
	case err == nil:
		s.Coupon = &applied
		s.CouponError = nil
	case kind == KindCouponInvalid || kind == KindCouponExpired:
		s.Coupon = nil
		s.CouponError = wrap("coupon", kind, err)
		log.Printf("⚠️ Coupon %s refusé: %v", code, err)
	default:
		return s.fail(classify("coupon", err))
	}

	if s.State == StatePriceReady {
		s.Breakdown = m.policy.Compose(s.Cart.Subtotal(), s.discount())
		return s.transition(StatePriceReady)
	}
	return nil
}

func (s *CheckoutSession) discount() decimal.Decimal {
	if s.Coupon == nil {
		return decimal.Zero
	}
	return s.Coupon.Discount
}

func (m *Machine) placeCOD(ctx context.Context, s *CheckoutSession) error {
	if err := s.transition(StateCommitting); err != nil {
		panic(err)
	}
	order, err := m.backend.PlaceCashOnDelivery(ctx, s.Draft())
	if err != nil {
		// aucun paiement : l'échec reste récupérable
		return s.fail(classify("commit", err))
	}
	m.committed(ctx, s, order)
	return nil
}

// commit envoie la preuve et le brouillon figé. Appelé en Committing, après un paiement réussi.
func (m *Machine) commit(ctx context.Context, s *CheckoutSession) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.CommitTimeout)
	defer cancel()

	draft := s.Draft()
	order, err := m.backend.VerifyPayment(cctx, *s.Proof, draft)
	if err != nil {
		if KindOf(err) == KindProofInvalid {
			return s.fail(&Error{Kind: KindProofInvalid, Step: "commit", Irreversible: true, Err: err})
		}
		failure := &Error{Kind: KindCriticalRecovery, Step: "commit", Irreversible: true, Err: err}
		m.record(s, draft, err)
		return s.fail(failure)
	}

	m.committed(ctx, s, order)
	return nil
}

func (m *Machine) record(s *CheckoutSession, draft models.OrderDraft, cause error) {
	log.Printf("❌ Paiement %s encaissé mais commande non enregistrée: %v", s.Proof.GatewayOrderID, cause)
	if m.journal == nil {
		return
	}
	_, err := m.journal.Record(reconcile.Entry{
		GatewayOrderID: s.Proof.GatewayOrderID,
		UserID:         s.UserID,
		Proof:          *s.Proof,
		Draft:          draft,
		Reason:         cause.Error(),
	})
	if err != nil {
		log.Printf("❌ Journal de réconciliation indisponible pour %s: %v", s.Proof.GatewayOrderID, err)
	}
}

// committed : Committing → Committed, puis vidage du panier (dernière étape).
func (m *Machine) committed(ctx context.Context, s *CheckoutSession, order *models.Order) {
	s.Order = order
	s.Failure = nil
	if err := s.transition(StateCommitted); err != nil {
		panic(err)
	}
	if err := m.cart.Clear(context.WithoutCancel(ctx)); err != nil {
		log.Printf("⚠️ Commande %s créée mais panier non vidé: %v", order.BusinessOrderID, err)
		return
	}
	log.Printf("✅ Commande %s confirmée, panier vidé", order.BusinessOrderID)
}

// RetryCommit rejoue le commit d'une tentative en reprise critique avec la même preuve
// et le même brouillon ; l'idempotence du backend empêche tout doublon.
func (m *Machine) RetryCommit(ctx context.Context, s *CheckoutSession) error {
	if s.State != StateFailed || s.Failure == nil || s.Failure.Kind != KindCriticalRecovery || s.Proof == nil {
		return fmt.Errorf("%w: reprise impossible depuis %s", ErrIllegalTransition, s.State)
	}
	if err := s.transition(StateCommitting); err != nil {
		return err
	}
	if err := m.commit(ctx, s); err != nil {
		return err
	}
	if m.journal != nil {
		if _, err := m.journal.MarkResolved(s.Proof.GatewayOrderID, s.Order.ID); err != nil && !errors.Is(err, reconcile.ErrNotFound) {
			log.Printf("⚠️ Entrée %s non marquée résolue: %v", s.Proof.GatewayOrderID, err)
		}
	}
	return nil
}

// Recovered reconstruit une session en reprise critique depuis une entrée du journal,
// pour rejouer le commit hors de la tentative d'origine.
func Recovered(e reconcile.Entry) *CheckoutSession {
	proof := e.Proof
	s := &CheckoutSession{
		UserID:        e.UserID,
		State:         StateFailed,
		Cart:          models.NewCartSnapshot(e.Draft.Products, e.RecordedAt),
		AddressID:     e.Draft.ShippingAddress,
		Breakdown:     e.Draft.PaymentBreakdown,
		PaymentMethod: e.Draft.PaymentMethod,
		Proof:         &proof,
		Failure:       &Error{Kind: KindCriticalRecovery, Step: "commit", Irreversible: true, Err: errors.New(e.Reason)},
	}
	if e.Draft.CouponCode != "" {
		s.Coupon = &models.AppliedCoupon{Code: e.Draft.CouponCode, Discount: e.Draft.PaymentBreakdown.Discount}
	}
	return s
}
