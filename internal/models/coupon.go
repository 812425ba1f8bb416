package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CouponPercentage   = "percentage"
	CouponFixed        = "fixed"
	CouponFreeShipping = "free_shipping"

	CouponPublic = "public"
	CouponHidden = "hidden"
)

type Coupon struct {
	ID             string           `json:"id"`
	Code           string           `json:"code"`
	Description    string           `json:"description,omitempty"`
	Type           string           `json:"type"` // "percentage", "fixed", "free_shipping"
	Value          decimal.Decimal  `json:"value"`
	MinAmount      decimal.Decimal  `json:"minAmount"`
	MaxAmount      *decimal.Decimal `json:"maxAmount,omitempty"` // plafond de réduction
	MaxUses        int              `json:"maxUses"`
	UsedCount      int              `json:"usedCount"`
	MaxUsesPerUser int              `json:"maxUsesPerUser"`
	Visibility     string           `json:"visibility"`
	ExpiresAt      time.Time        `json:"expiresAt"`
	StartsAt       time.Time        `json:"startsAt"`
	IsActive       bool             `json:"isActive"`
	CreatedAt      time.Time        `json:"createdAt"`
}

type CouponUsage struct {
	CouponCode string    `json:"couponCode"`
	UserID     string    `json:"userId"`
	OrderID    string    `json:"orderId"`
	UsedAt     time.Time `json:"usedAt"`
}

// AppliedCoupon est la réponse autoritaire de POST /api/coupons/apply.
type AppliedCoupon struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

// CouponUpdate : seuls les champs non nil sont modifiés.
type CouponUpdate struct {
	IsActive   *bool      `json:"isActive"`
	MaxUses    *int       `json:"maxUses"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	Visibility *string    `json:"visibility"`
}

func (u CouponUpdate) Empty() bool {
	return u.IsActive == nil && u.MaxUses == nil && u.ExpiresAt == nil && u.Visibility == nil
}

func (u CouponUpdate) Apply(c *Coupon) {
	if u.IsActive != nil {
		c.IsActive = *u.IsActive
	}
	if u.MaxUses != nil {
		c.MaxUses = *u.MaxUses
	}
	if u.ExpiresAt != nil {
		c.ExpiresAt = *u.ExpiresAt
	}
	if u.Visibility != nil {
		c.Visibility = *u.Visibility
	}
}
