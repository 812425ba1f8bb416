// Package settlement transforme une preuve de paiement vérifiée en commande, une seule
// fois par gatewayOrderId, et crée les intents de paiement côté passerelle.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cedra_checkout/internal/gateway"
	"cedra_checkout/internal/metrics"
	"cedra_checkout/internal/models"
	"cedra_checkout/internal/pricing"
	"cedra_checkout/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidDraft      = errors.New("commande invalide")
	ErrPersistenceFailed = errors.New("enregistrement de la commande impossible")
	ErrCommitInProgress  = errors.New("un commit est déjà en cours pour ce paiement")
)

// CouponValidator recalcule la réduction autoritaire d'un code.
type CouponValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal, userID string) (models.AppliedCoupon, error)
}

// Locker sérialise les commits d'un même gatewayOrderId entre instances.
type Locker interface {
	AcquireWait(ctx context.Context, key string, every time.Duration) (func(), error)
}

// Notifier envoie la confirmation sans bloquer le commit.
type Notifier interface {
	Async(order models.Order, email string)
}

type Committer struct {
	store    store.Store
	coupons  CouponValidator
	provider gateway.Provider
	policy   pricing.Policy
	currency string

	Locker      Locker
	Notifier    Notifier
	Metrics     *metrics.Metrics
	LockTimeout time.Duration
	now         func() time.Time
}

func NewCommitter(s store.Store, coupons CouponValidator, provider gateway.Provider, policy pricing.Policy, currency string) *Committer {
	return &Committer{
		store:       s,
		coupons:     coupons,
		provider:    provider,
		policy:      policy,
		currency:    currency,
		LockTimeout: 10 * time.Second,
		now:         time.Now,
	}
}

// CreateIntent réserve le montant auprès de la passerelle et mémorise l'intent
// pour la vérification ultérieure du commit. Un coupon présent est validé ici et
// sa réduction est figée sur l'intent.
func (c *Committer) CreateIntent(ctx context.Context, userID string, req models.IntentRequest) (models.PaymentIntent, error) {
	if !req.Amount.IsPositive() {
		return models.PaymentIntent{}, fmt.Errorf("%w: montant doit être positif", ErrInvalidDraft)
	}
	currency := req.Currency
	if currency == "" {
		currency = c.currency
	}
	currency = strings.ToUpper(currency)
	if currency != c.currency {
		return models.PaymentIntent{}, fmt.Errorf("%w: devise %s non acceptée", ErrInvalidDraft, currency)
	}

	var applied models.AppliedCoupon
	if strings.TrimSpace(req.CouponCode) != "" {
		if !req.OrderTotal.IsPositive() {
			return models.PaymentIntent{}, fmt.Errorf("%w: orderTotal requis avec un coupon", ErrInvalidDraft)
		}
		var err error
		applied, err = c.coupons.Validate(ctx, req.CouponCode, req.OrderTotal, userID)
		if err != nil {
			return models.PaymentIntent{}, err
		}
	}

	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	intent, err := c.provider.CreateOrder(ctx, req.Amount.Round(2), currency, receipt)
	if err != nil {
		c.Metrics.ObserveIntent(c.provider.Name(), "failed")
		return models.PaymentIntent{}, err
	}
	intent.UserID = userID
	intent.Provider = c.provider.Name()
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = c.now()
	}
	if applied.Code != "" {
		intent.CouponCode = applied.Code
		intent.CouponDiscount = applied.Discount
		intent.ItemsTotal = req.OrderTotal.Round(2)
	}

	if err := c.store.SaveIntent(ctx, intent); err != nil {
		c.Metrics.ObserveIntent(c.provider.Name(), "failed")
		return models.PaymentIntent{}, fmt.Errorf("%w: enregistrement intent: %v", gateway.ErrGatewayUnavailable, err)
	}
	c.Metrics.ObserveIntent(c.provider.Name(), "created")
	return intent, nil
}

// Commit vérifie la preuve et crée la commande. Un deuxième appel avec le même
// gatewayOrderId renvoie la commande existante avec created=false.
func (c *Committer) Commit(ctx context.Context, buyer models.User, proof models.PaymentProof, draft models.OrderDraft) (*models.Order, bool, error) {
	if proof.GatewayOrderID == "" {
		return nil, false, fmt.Errorf("%w: razorpay_order_id manquant", gateway.ErrProofInvalid)
	}

	// Rejeu d'un commit déjà abouti : pas de revalidation (le coupon peut être épuisé depuis).
	if existing, ok, err := c.existing(ctx, buyer.ID, proof.GatewayOrderID); err != nil || ok {
		if ok {
			c.Metrics.ObserveCommit(models.PaymentMethodOnline, metrics.CommitDuplicate)
		}
		return existing, false, err
	}

	if draft.PaymentMethod == "" {
		draft.PaymentMethod = models.PaymentMethodOnline
	}
	if draft.PaymentMethod != models.PaymentMethodOnline {
		return nil, false, c.reject(models.PaymentMethodOnline, fmt.Errorf("%w: paymentMethod %q", ErrInvalidDraft, draft.PaymentMethod))
	}

	intent, err := c.store.GetIntent(ctx, proof.GatewayOrderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, c.reject(models.PaymentMethodOnline, fmt.Errorf("%w: intent %s inconnu", gateway.ErrProofInvalid, proof.GatewayOrderID))
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: lecture intent: %v", gateway.ErrGatewayUnavailable, err)
	}
	if intent.UserID != "" && intent.UserID != buyer.ID {
		return nil, false, c.reject(models.PaymentMethodOnline, fmt.Errorf("%w: intent d'un autre utilisateur", gateway.ErrProofInvalid))
	}

	// Preuve d'abord ; la réduction figée sur l'intent n'est plus revalidée ensuite.
	if err := c.provider.Verify(ctx, proof, *intent); err != nil {
		log.Printf("❌ Preuve refusée pour %s: %v", proof.GatewayOrderID, err)
		return nil, false, c.reject(models.PaymentMethodOnline, err)
	}

	addr, breakdown, err := c.checkDraft(ctx, buyer.ID, draft, intent)
	if err != nil {
		return nil, false, c.reject(models.PaymentMethodOnline, err)
	}
	if !intent.Amount.Equal(breakdown.Total) {
		return nil, false, c.reject(models.PaymentMethodOnline, fmt.Errorf("%w: intent %s ≠ total %s", pricing.ErrBreakdownMismatch, intent.Amount, breakdown.Total))
	}

	order := c.newOrder(buyer.ID, draft, *addr, breakdown)
	order.Status = models.OrderStatusPaid
	order.GatewayOrderID = proof.GatewayOrderID
	order.PaymentID = proof.PaymentID

	release, err := c.lock(ctx, proof.GatewayOrderID)
	if err != nil {
		return nil, false, err
	}
	defer release()

	// sous verrou : un commit concurrent a pu aboutir entre-temps
	if existing, ok, err := c.existing(ctx, buyer.ID, proof.GatewayOrderID); err != nil || ok {
		if ok {
			c.Metrics.ObserveCommit(models.PaymentMethodOnline, metrics.CommitDuplicate)
		}
		return existing, false, err
	}

	saved, created, err := c.store.InsertOrderIfAbsent(ctx, order)
	if err != nil {
		log.Printf("❌ Paiement %s vérifié mais commande non enregistrée: %v", proof.GatewayOrderID, err)
		c.Metrics.ObserveCommit(models.PaymentMethodOnline, metrics.CommitPersistenceFailed)
		return nil, false, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	if !created {
		c.Metrics.ObserveCommit(models.PaymentMethodOnline, metrics.CommitDuplicate)
		return saved, false, nil
	}

	c.afterCreate(ctx, *saved, buyer.Email)
	c.Metrics.ObserveCommit(models.PaymentMethodOnline, metrics.CommitCreated)
	log.Printf("✅ Commande %s créée (paiement %s, %s)", saved.BusinessOrderID, saved.PaymentID, saved.PaymentBreakdown.Total.StringFixed(2))
	return saved, true, nil
}

// CommitCashOnDelivery crée une commande en attente de paiement, sans preuve.
func (c *Committer) CommitCashOnDelivery(ctx context.Context, buyer models.User, draft models.OrderDraft) (*models.Order, error) {
	if draft.PaymentMethod == "" {
		draft.PaymentMethod = models.PaymentMethodCOD
	}
	if draft.PaymentMethod != models.PaymentMethodCOD {
		return nil, c.reject(models.PaymentMethodCOD, fmt.Errorf("%w: paymentMethod %q", ErrInvalidDraft, draft.PaymentMethod))
	}

	addr, breakdown, err := c.checkDraft(ctx, buyer.ID, draft, nil)
	if err != nil {
		return nil, c.reject(models.PaymentMethodCOD, err)
	}

	order := c.newOrder(buyer.ID, draft, *addr, breakdown)
	order.Status = models.OrderStatusPending

	saved, _, err := c.store.InsertOrderIfAbsent(ctx, order)
	if err != nil {
		c.Metrics.ObserveCommit(models.PaymentMethodCOD, metrics.CommitPersistenceFailed)
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	c.afterCreate(ctx, *saved, buyer.Email)
	c.Metrics.ObserveCommit(models.PaymentMethodCOD, metrics.CommitCreated)
	log.Printf("✅ Commande COD %s créée (%s)", saved.BusinessOrderID, saved.PaymentBreakdown.Total.StringFixed(2))
	return saved, nil
}

// checkDraft valide le brouillon, résout l'adresse et recalcule le détail de paiement.
// Avec un intent portant un coupon, la réduction figée remplace la revalidation.
func (c *Committer) checkDraft(ctx context.Context, userID string, draft models.OrderDraft, intent *models.PaymentIntent) (*models.Address, models.PaymentBreakdown, error) {
	if len(draft.Products) == 0 {
		return nil, models.PaymentBreakdown{}, fmt.Errorf("%w: aucun produit", ErrInvalidDraft)
	}
	for _, item := range draft.Products {
		if item.ProductID == "" || item.Quantity <= 0 || item.UnitPrice.IsNegative() {
			return nil, models.PaymentBreakdown{}, fmt.Errorf("%w: ligne produit %q invalide", ErrInvalidDraft, item.ProductID)
		}
		if item.DiscountPercent.IsNegative() || item.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
			return nil, models.PaymentBreakdown{}, fmt.Errorf("%w: remise produit %q invalide", ErrInvalidDraft, item.ProductID)
		}
	}
	if draft.ShippingAddress == "" {
		return nil, models.PaymentBreakdown{}, fmt.Errorf("%w: adresse de livraison manquante", ErrInvalidDraft)
	}

	addr, err := c.store.GetAddress(ctx, userID, draft.ShippingAddress)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.PaymentBreakdown{}, fmt.Errorf("%w: adresse %s inconnue", ErrInvalidDraft, draft.ShippingAddress)
	}
	if err != nil {
		return nil, models.PaymentBreakdown{}, fmt.Errorf("%w: lecture adresse: %v", ErrPersistenceFailed, err)
	}

	breakdown, err := c.policy.Verify(draft.Products, draft.PaymentBreakdown)
	if err != nil {
		return nil, models.PaymentBreakdown{}, err
	}

	discount, err := c.discount(ctx, userID, draft.CouponCode, breakdown.ItemsTotal, intent)
	if err != nil {
		return nil, models.PaymentBreakdown{}, err
	}
	if !discount.Equal(breakdown.Discount) {
		return nil, models.PaymentBreakdown{}, fmt.Errorf("%w: remise %s ≠ %s", pricing.ErrBreakdownMismatch, breakdown.Discount, discount)
	}
	return addr, breakdown, nil
}

func (c *Committer) discount(ctx context.Context, userID, code string, itemsTotal decimal.Decimal, intent *models.PaymentIntent) (decimal.Decimal, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if intent != nil && intent.CouponCode != "" {
		if code != intent.CouponCode {
			return decimal.Zero, fmt.Errorf("%w: coupon %q ≠ coupon réservé %q", pricing.ErrBreakdownMismatch, code, intent.CouponCode)
		}
		if !itemsTotal.Equal(intent.ItemsTotal) {
			return decimal.Zero, fmt.Errorf("%w: sous-total %s ≠ sous-total réservé %s", pricing.ErrBreakdownMismatch, itemsTotal, intent.ItemsTotal)
		}
		return intent.CouponDiscount, nil
	}
	if code == "" {
		return decimal.Zero, nil
	}
	applied, err := c.coupons.Validate(ctx, code, itemsTotal, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return applied.Discount, nil
}

func (c *Committer) newOrder(userID string, draft models.OrderDraft, addr models.Address, breakdown models.PaymentBreakdown) *models.Order {
	now := c.now()
	id := uuid.New()
	products := make([]models.CartItem, len(draft.Products))
	copy(products, draft.Products)

	return &models.Order{
		ID:               id.String(),
		BusinessOrderID:  BusinessOrderID(now, id),
		UserID:           userID,
		Products:         products,
		Address:          addr,
		PaymentMethod:    draft.PaymentMethod,
		PaymentBreakdown: breakdown,
		CouponCode:       strings.ToUpper(draft.CouponCode),
		CreatedAt:        now,
	}
}

// BusinessOrderID : ORD-AAAAMMJJ-XXXXXXXX, lisible par le support client.
func BusinessOrderID(at time.Time, id uuid.UUID) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", at.UTC().Format("20060102"), suffix)
}

func (c *Committer) existing(ctx context.Context, userID, gatewayOrderID string) (*models.Order, bool, error) {
	order, err := c.store.GetOrderByGatewayOrder(ctx, gatewayOrderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	if order.UserID != userID {
		return nil, false, fmt.Errorf("%w: paiement rattaché à un autre utilisateur", gateway.ErrProofInvalid)
	}
	return order, true, nil
}

func (c *Committer) lock(ctx context.Context, gatewayOrderID string) (func(), error) {
	if c.Locker == nil {
		return func() {}, nil
	}
	lockCtx, cancel := context.WithTimeout(ctx, c.LockTimeout)
	defer cancel()

	release, err := c.Locker.AcquireWait(lockCtx, gatewayOrderID, 50*time.Millisecond)
	switch {
	case err == nil:
		return release, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, ErrCommitInProgress
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		// Redis indisponible : l'insertion conditionnelle du store garde l'unicité
		log.Printf("⚠️ Verrou de commit indisponible pour %s: %v", gatewayOrderID, err)
		return func() {}, nil
	}
}

// afterCreate enregistre l'usage du coupon puis notifie ; aucune erreur ne remonte.
func (c *Committer) afterCreate(ctx context.Context, order models.Order, email string) {
	if order.CouponCode != "" {
		usage := models.CouponUsage{CouponCode: order.CouponCode, UserID: order.UserID, OrderID: order.ID, UsedAt: order.CreatedAt}
		if err := c.store.RecordUsage(ctx, usage); err != nil {
			log.Printf("⚠️ Usage du coupon %s non enregistré pour %s: %v", order.CouponCode, order.BusinessOrderID, err)
		}
	}
	if c.Notifier != nil {
		c.Notifier.Async(order, email)
	}
}

func (c *Committer) reject(method string, err error) error {
	c.Metrics.ObserveCommit(method, metrics.CommitRejected)
	return err
}
