package models

import "time"

const (
	PaymentMethodOnline = "online"
	PaymentMethodCOD    = "cod"

	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
	OrderStatusFailed  = "failed"
)

type Order struct {
	ID               string           `json:"id"`
	BusinessOrderID  string           `json:"businessOrderId"`
	UserID           string           `json:"userId"`
	Products         []CartItem       `json:"products"`
	Address          Address          `json:"shippingAddress"`
	PaymentMethod    string           `json:"paymentMethod"`
	PaymentBreakdown PaymentBreakdown `json:"paymentBreakdown"`
	CouponCode       string           `json:"couponCode,omitempty"`
	Status           string           `json:"status"`
	GatewayOrderID   string           `json:"gatewayOrderId,omitempty"`
	PaymentID        string           `json:"paymentId,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// OrderDraft est ce que le client envoie pour créer une commande (COD ou après paiement).
type OrderDraft struct {
	Products         []CartItem       `json:"products"`
	ShippingAddress  string           `json:"shippingAddress"` // id d'adresse
	PaymentMethod    string           `json:"paymentMethod"`
	PaymentBreakdown PaymentBreakdown `json:"paymentBreakdown"`
	CouponCode       string           `json:"couponCode,omitempty"`
}

// VerifyRequest est le corps de POST /api/payment/verify : preuve + brouillon.
type VerifyRequest struct {
	PaymentProof
	OrderDraft
}
