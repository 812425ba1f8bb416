// Package pricing compose le détail de paiement d'une commande.
// Aucune E/S : les mêmes entrées donnent toujours le même résultat.
package pricing

import (
	"errors"
	"time"

	"cedra_checkout/internal/models"

	"github.com/shopspring/decimal"
)

var ErrBreakdownMismatch = errors.New("le détail de paiement ne correspond pas au calcul serveur")

// Policy regroupe la politique de taxe et de livraison.
type Policy struct {
	TaxRate     decimal.Decimal
	ShippingFee decimal.Decimal
}

// DefaultPolicy : taxe 10 %, livraison forfaitaire 99.
func DefaultPolicy() Policy {
	return Policy{
		TaxRate:     decimal.NewFromFloat(0.10),
		ShippingFee: decimal.NewFromInt(99),
	}
}

// Compose calcule le détail avec la politique par défaut.
func Compose(itemsTotal, discount decimal.Decimal) models.PaymentBreakdown {
	return DefaultPolicy().Compose(itemsTotal, discount)
}

// Compose : tax = round(rate·(itemsTotal-discount)), shipping = fee si itemsTotal > 0.
// La remise est bornée à [0, itemsTotal].
func (p Policy) Compose(itemsTotal, discount decimal.Decimal) models.PaymentBreakdown {
	if itemsTotal.IsNegative() {
		itemsTotal = decimal.Zero
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(itemsTotal) {
		discount = itemsTotal
	}

	net := itemsTotal.Sub(discount)
	tax := net.Mul(p.TaxRate).Round(0)

	shipping := decimal.Zero
	if itemsTotal.IsPositive() {
		shipping = p.ShippingFee
	}

	return models.PaymentBreakdown{
		ItemsTotal: itemsTotal,
		Discount:   discount,
		Tax:        tax,
		Shipping:   shipping,
		Total:      net.Add(tax).Add(shipping),
	}
}

// Equal compare deux détails montant par montant.
func Equal(a, b models.PaymentBreakdown) bool {
	return a.ItemsTotal.Equal(b.ItemsTotal) &&
		a.Discount.Equal(b.Discount) &&
		a.Tax.Equal(b.Tax) &&
		a.Shipping.Equal(b.Shipping) &&
		a.Total.Equal(b.Total)
}

// Verify recalcule le détail depuis les lignes et la remise, et le compare à celui reçu.
func (p Policy) Verify(items []models.CartItem, claimed models.PaymentBreakdown) (models.PaymentBreakdown, error) {
	snap := models.NewCartSnapshot(items, time.Time{})
	expected := p.Compose(snap.Subtotal(), claimed.Discount)
	if !Equal(expected, claimed) {
		return expected, ErrBreakdownMismatch
	}
	return expected, nil
}
