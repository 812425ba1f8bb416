package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentBreakdown : Total = ItemsTotal - Discount + Tax + Shipping
type PaymentBreakdown struct {
	ItemsTotal decimal.Decimal `json:"itemsTotal"`
	Discount   decimal.Decimal `json:"discount"`
	Tax        decimal.Decimal `json:"tax"`
	Shipping   decimal.Decimal `json:"shipping"`
	Total      decimal.Decimal `json:"total"`
}

// PaymentIntent est la réservation côté passerelle, créée avant l'ouverture de son UI.
type PaymentIntent struct {
	GatewayOrderID string          `json:"id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	UserID         string          `json:"-"`
	Provider       string          `json:"-"`
	ClientSecret   string          `json:"clientSecret,omitempty"`
	CreatedAt      time.Time       `json:"-"`

	// Coupon validé à la réservation : la réduction reste acquise après capture.
	CouponCode     string          `json:"couponCode,omitempty"`
	CouponDiscount decimal.Decimal `json:"-"`
	ItemsTotal     decimal.Decimal `json:"-"`
}

// IntentRequest est le corps de POST /api/payment/create-order. OrderTotal est le
// sous-total articles sur lequel CouponCode a été appliqué.
type IntentRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	CouponCode string          `json:"couponCode,omitempty"`
	OrderTotal decimal.Decimal `json:"orderTotal"`
}

// PaymentProof est produit uniquement par le callback de la passerelle.
type PaymentProof struct {
	PaymentID      string `json:"razorpay_payment_id"`
	GatewayOrderID string `json:"razorpay_order_id"`
	Signature      string `json:"razorpay_signature"`
}

// MinorUnits convertit un montant en paise/centimes pour les API des passerelles.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits est l'inverse de MinorUnits.
func FromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
