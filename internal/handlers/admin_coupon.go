package handlers

import (
	"log"
	"net/http"
	"time"

	"cedra_checkout/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type createCouponRequest struct {
	Code           string           `json:"code" binding:"required"`
	Description    string           `json:"description"`
	Type           string           `json:"type" binding:"required"` // "percentage", "fixed", "free_shipping"
	Value          decimal.Decimal  `json:"value"`
	MinAmount      decimal.Decimal  `json:"minAmount"`
	MaxAmount      *decimal.Decimal `json:"maxAmount"`
	MaxUses        int              `json:"maxUses"`
	MaxUsesPerUser int              `json:"maxUsesPerUser"`
	Visibility     string           `json:"visibility"`
	ExpiresAt      time.Time        `json:"expiresAt" binding:"required"`
	StartsAt       time.Time        `json:"startsAt"`
	IsActive       *bool            `json:"isActive"`
}

// POST /api/admin/coupons
func (h *Handler) CreateCoupon(c *gin.Context) {
	var req createCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, CodeValidation, "Données invalides: "+err.Error())
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	created, err := h.coupons.Create(c.Request.Context(), models.Coupon{
		Code:           req.Code,
		Description:    req.Description,
		Type:           req.Type,
		Value:          req.Value,
		MinAmount:      req.MinAmount,
		MaxAmount:      req.MaxAmount,
		MaxUses:        req.MaxUses,
		MaxUsesPerUser: req.MaxUsesPerUser,
		Visibility:     req.Visibility,
		ExpiresAt:      req.ExpiresAt,
		StartsAt:       req.StartsAt,
		IsActive:       active,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	admin, _ := c.Get("user_id")
	log.Printf("🎟️ Coupon %s créé par %v", created.Code, admin)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Coupon créé avec succès",
		"coupon":  created,
	})
}

// GET /api/admin/coupons : masqués et expirés compris.
func (h *Handler) GetAllCoupons(c *gin.Context) {
	coupons, err := h.coupons.All(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"coupons": coupons,
		"total":   len(coupons),
	})
}

// PUT /api/admin/coupons/:code
func (h *Handler) UpdateCoupon(c *gin.Context) {
	var upd models.CouponUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		abort(c, http.StatusBadRequest, CodeValidation, "Données invalides")
		return
	}

	updated, err := h.coupons.Update(c.Request.Context(), c.Param("code"), upd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Coupon mis à jour avec succès",
		"coupon":  updated,
	})
}

// DELETE /api/admin/coupons/:code
func (h *Handler) DeleteCoupon(c *gin.Context) {
	if err := h.coupons.Delete(c.Request.Context(), c.Param("code")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Coupon supprimé avec succès"})
}
