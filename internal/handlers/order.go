package handlers

import (
	"net/http"

	"cedra_checkout/internal/models"

	"github.com/gin-gonic/gin"
)

// POST /api/orders (paiement à la livraison)
func (h *Handler) PlaceOrder(c *gin.Context) {
	user, ok := buyer(c)
	if !ok {
		return
	}

	var draft models.OrderDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		abort(c, http.StatusBadRequest, CodeValidation, "Données invalides: "+err.Error())
		return
	}

	order, err := h.committer.CommitCashOnDelivery(c.Request.Context(), user, draft)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// GET /api/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	user, ok := buyer(c)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
