package models

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CartItem est une ligne du panier stocké dans Redis sous cart:<userID>.
type CartItem struct {
	ProductID       string          `json:"productId"`
	Name            string          `json:"name,omitempty"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	ImageURL        string          `json:"imageUrl,omitempty"`
}

// LineTotal = unitPrice·(1-discountPercent/100)·quantity
func (i CartItem) LineTotal() decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(i.DiscountPercent.Div(hundred))
	return i.UnitPrice.Mul(factor).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartSnapshot est la vue figée du panier au début d'une tentative de checkout.
type CartSnapshot struct {
	Items      []CartItem `json:"items"`
	CapturedAt time.Time  `json:"capturedAt"`
}

// NewCartSnapshot copie les lignes : le panier d'origine peut évoluer sans affecter le snapshot.
func NewCartSnapshot(items []CartItem, at time.Time) CartSnapshot {
	cp := make([]CartItem, len(items))
	copy(cp, items)
	return CartSnapshot{Items: cp, CapturedAt: at}
}

// Subtotal arrondi au centime.
func (s CartSnapshot) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.LineTotal())
	}
	return total.Round(2)
}

func (s CartSnapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// Lines renvoie une copie des lignes.
func (s CartSnapshot) Lines() []CartItem {
	cp := make([]CartItem, len(s.Items))
	copy(cp, s.Items)
	return cp
}
