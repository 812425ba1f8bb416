package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// GET /api/coupons (public)
func (h *Handler) ListCoupons(c *gin.Context) {
	coupons, err := h.coupons.PublicCatalog(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"coupons": coupons,
		"count":   len(coupons),
	})
}

type applyCouponRequest struct {
	Code       string          `json:"code" binding:"required"`
	OrderTotal decimal.Decimal `json:"orderTotal"`
}

// POST /api/coupons/apply : réponse autoritaire {code, discount}, sans effet de bord.
func (h *Handler) ApplyCoupon(c *gin.Context) {
	user, ok := buyer(c)
	if !ok {
		return
	}

	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, CodeValidation, "Code coupon requis")
		return
	}
	if req.OrderTotal.IsNegative() {
		abort(c, http.StatusBadRequest, CodeValidation, "Montant du panier invalide")
		return
	}

	applied, err := h.coupons.Validate(c.Request.Context(), req.Code, req.OrderTotal, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, applied)
}
