package handlers

import (
	"log"
	"net/http"

	"cedra_checkout/internal/models"

	"github.com/gin-gonic/gin"
)

// POST /api/payment/create-order
func (h *Handler) CreatePaymentOrder(c *gin.Context) {
	user, ok := buyer(c)
	if !ok {
		return
	}

	var req models.IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, CodeValidation, "Données invalides: "+err.Error())
		return
	}

	intent, err := h.committer.CreateIntent(c.Request.Context(), user.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

// POST /api/payment/verify : 201 à la création, 200 si la commande existait déjà.
func (h *Handler) VerifyPayment(c *gin.Context) {
	user, ok := buyer(c)
	if !ok {
		return
	}

	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, CodeValidation, "Données invalides: "+err.Error())
		return
	}

	order, created, err := h.committer.Commit(c.Request.Context(), user, req.PaymentProof, req.OrderDraft)
	if err != nil {
		respondError(c, err)
		return
	}
	if !created {
		log.Printf("🔁 Commit rejoué pour %s → %s", req.GatewayOrderID, order.BusinessOrderID)
		c.JSON(http.StatusOK, order)
		return
	}
	c.JSON(http.StatusCreated, order)
}
