// Package coupon valide les codes promo et calcule la réduction autoritaire.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"cedra_checkout/internal/cache"
	"cedra_checkout/internal/models"
	"cedra_checkout/internal/store"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCoupon = errors.New("code coupon invalide")
	ErrExpiredCoupon = errors.New("ce coupon a expiré")
)

// Rejection précise la raison d'un refus ; elle enveloppe ErrInvalidCoupon ou ErrExpiredCoupon.
type Rejection struct {
	Reason string
	Err    error
}

func (r *Rejection) Error() string { return r.Reason }
func (r *Rejection) Unwrap() error { return r.Err }

func invalid(reason string) error {
	return &Rejection{Reason: reason, Err: ErrInvalidCoupon}
}

// Catalog est le cache Redis du catalogue public.
type Catalog interface {
	Get(ctx context.Context) ([]models.Coupon, error)
	Set(ctx context.Context, coupons []models.Coupon) error
	Invalidate(ctx context.Context) error
}

type Engine struct {
	store       store.CouponStore
	catalog     Catalog
	shippingFee decimal.Decimal
	now         func() time.Time
}

// NewEngine : catalog peut être nil (pas de cache).
func NewEngine(s store.CouponStore, catalog Catalog, shippingFee decimal.Decimal) *Engine {
	return &Engine{store: s, catalog: catalog, shippingFee: shippingFee, now: time.Now}
}

// WithClock remplace l'horloge (tests).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Validate vérifie le code pour ce sous-total et cet utilisateur. Aucun état n'est modifié.
func (e *Engine) Validate(ctx context.Context, code string, subtotal decimal.Decimal, userID string) (models.AppliedCoupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return models.AppliedCoupon{}, invalid("code coupon requis")
	}

	c, err := e.store.GetCoupon(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return models.AppliedCoupon{}, invalid("code coupon invalide")
	}
	if err != nil {
		return models.AppliedCoupon{}, fmt.Errorf("lecture coupon %s: %w", code, err)
	}

	now := e.now()
	if !c.IsActive {
		return models.AppliedCoupon{}, invalid("ce coupon n'est plus actif")
	}
	if !c.StartsAt.IsZero() && now.Before(c.StartsAt) {
		return models.AppliedCoupon{}, invalid("ce coupon n'est pas encore valide")
	}
	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
		return models.AppliedCoupon{}, &Rejection{Reason: "ce coupon a expiré", Err: ErrExpiredCoupon}
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return models.AppliedCoupon{}, invalid("ce coupon a atteint sa limite d'utilisation")
	}
	if subtotal.LessThan(c.MinAmount) {
		return models.AppliedCoupon{}, invalid(fmt.Sprintf("montant minimum requis: %s", c.MinAmount.StringFixed(2)))
	}

	if c.MaxUsesPerUser > 0 {
		used, err := e.store.CountUsage(ctx, code, userID)
		if err != nil {
			return models.AppliedCoupon{}, fmt.Errorf("lecture utilisations %s: %w", code, err)
		}
		if used >= c.MaxUsesPerUser {
			return models.AppliedCoupon{}, invalid("vous avez déjà utilisé ce coupon le nombre maximum de fois")
		}
	}

	return models.AppliedCoupon{Code: c.Code, Discount: e.discount(*c, subtotal)}, nil
}

func (e *Engine) discount(c models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.Type {
	case models.CouponPercentage:
		d = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100))
		if c.MaxAmount != nil && d.GreaterThan(*c.MaxAmount) {
			d = *c.MaxAmount
		}
	case models.CouponFixed:
		d = c.Value
	case models.CouponFreeShipping:
		d = e.shippingFee
	}
	if d.GreaterThan(subtotal) {
		d = subtotal
	}
	if d.IsNegative() {
		d = decimal.Zero
	}
	return d.Round(2)
}

// PublicCatalog liste les coupons publics, actifs et non expirés.
func (e *Engine) PublicCatalog(ctx context.Context) ([]models.Coupon, error) {
	if e.catalog != nil {
		cached, err := e.catalog.Get(ctx)
		if err == nil {
			return e.filterLive(cached), nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("⚠️ Cache catalogue coupons indisponible: %v", err)
		}
	}

	all, err := e.store.ListCoupons(ctx)
	if err != nil {
		return nil, fmt.Errorf("lecture catalogue: %w", err)
	}

	public := make([]models.Coupon, 0, len(all))
	for _, c := range all {
		if c.Visibility == models.CouponHidden {
			continue
		}
		public = append(public, c)
	}
	sort.Slice(public, func(i, j int) bool { return public[i].Code < public[j].Code })

	if e.catalog != nil {
		if err := e.catalog.Set(ctx, public); err != nil {
			log.Printf("⚠️ Mise en cache du catalogue impossible: %v", err)
		}
	}
	return e.filterLive(public), nil
}

// Les coupons en cache peuvent avoir expiré depuis leur mise en cache.
func (e *Engine) filterLive(coupons []models.Coupon) []models.Coupon {
	now := e.now()
	out := make([]models.Coupon, 0, len(coupons))
	for _, c := range coupons {
		if !c.IsActive || c.Visibility == models.CouponHidden {
			continue
		}
		if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
			continue
		}
		if !c.StartsAt.IsZero() && now.Before(c.StartsAt) {
			continue
		}
		if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Create enregistre un nouveau coupon et invalide le cache du catalogue.
func (e *Engine) Create(ctx context.Context, c models.Coupon) (*models.Coupon, error) {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	switch c.Type {
	case models.CouponPercentage:
		if !c.Value.IsPositive() || c.Value.GreaterThan(decimal.NewFromInt(100)) {
			return nil, invalid("pourcentage doit être entre 1 et 100")
		}
	case models.CouponFixed:
		if !c.Value.IsPositive() {
			return nil, invalid("montant fixe doit être positif")
		}
	case models.CouponFreeShipping:
	default:
		return nil, invalid("type de coupon invalide")
	}
	if c.Code == "" {
		return nil, invalid("code coupon requis")
	}
	if c.Visibility == "" {
		c.Visibility = models.CouponPublic
	}
	now := e.now()
	if c.StartsAt.IsZero() {
		c.StartsAt = now
	}
	c.CreatedAt = now

	if err := e.store.CreateCoupon(ctx, &c); err != nil {
		return nil, err
	}
	e.invalidate(ctx)
	log.Printf("✅ Coupon créé: %s", c.Code)
	return &c, nil
}

// All liste tous les coupons, masqués et expirés compris (administration).
func (e *Engine) All(ctx context.Context) ([]models.Coupon, error) {
	all, err := e.store.ListCoupons(ctx)
	if err != nil {
		return nil, fmt.Errorf("lecture coupons: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	return all, nil
}

// Update modifie l'état d'un coupon. Les intents déjà réservés gardent leur réduction.
func (e *Engine) Update(ctx context.Context, code string, upd models.CouponUpdate) (*models.Coupon, error) {
	if upd.Empty() {
		return nil, invalid("aucune mise à jour fournie")
	}
	if upd.MaxUses != nil && *upd.MaxUses < 0 {
		return nil, invalid("maxUses doit être positif")
	}
	if upd.Visibility != nil && *upd.Visibility != models.CouponPublic && *upd.Visibility != models.CouponHidden {
		return nil, invalid("visibilité invalide")
	}

	c, err := e.store.UpdateCoupon(ctx, strings.ToUpper(strings.TrimSpace(code)), upd)
	if err != nil {
		return nil, err
	}
	e.invalidate(ctx)
	log.Printf("✏️ Coupon mis à jour: %s", c.Code)
	return c, nil
}

func (e *Engine) Delete(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := e.store.DeleteCoupon(ctx, code); err != nil {
		return err
	}
	e.invalidate(ctx)
	log.Printf("🗑️ Coupon supprimé: %s", code)
	return nil
}

func (e *Engine) invalidate(ctx context.Context) {
	if e.catalog == nil {
		return
	}
	if err := e.catalog.Invalidate(ctx); err != nil {
		log.Printf("⚠️ Invalidation du catalogue impossible: %v", err)
	}
}
