package handlers

import (
	"log"
	"net/http"

	"cedra_checkout/internal/models"

	"github.com/gin-gonic/gin"
)

// GET /api/cart
func (h *Handler) GetCart(c *gin.Context) {
	user, ok := buyer(c)
	if !ok {
		return
	}

	snap, err := h.cart.Snapshot(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// DELETE /api/cart
func (h *Handler) ClearCart(c *gin.Context) {
	user, ok := buyer(c)
	if !ok {
		return
	}

	if err := h.cart.Clear(c.Request.Context(), user.ID); err != nil {
		respondError(c, err)
		return
	}
	log.Printf("🧹 Panier vidé pour %s", user.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Panier vidé"})
}

// PUT /api/cart : remplace les lignes du panier.
func (h *Handler) ReplaceCart(c *gin.Context) {
	user, ok := buyer(c)
	if !ok {
		return
	}

	var req struct {
		Items []models.CartItem `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, CodeValidation, "Données invalides: "+err.Error())
		return
	}
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity <= 0 || item.UnitPrice.IsNegative() {
			abort(c, http.StatusBadRequest, CodeValidation, "Ligne de panier invalide: "+item.ProductID)
			return
		}
	}

	ctx := c.Request.Context()
	if err := h.cart.Set(ctx, user.ID, req.Items); err != nil {
		respondError(c, err)
		return
	}
	snap, err := h.cart.Snapshot(ctx, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
