package handlers

import (
	"log"
	"net/http"

	"cedra_checkout/internal/address"
	"cedra_checkout/internal/models"

	"github.com/gin-gonic/gin"
)

// GET /api/addresses
func (h *Handler) ListAddresses(c *gin.Context) {
	user, ok := buyer(c)
	if !ok {
		return
	}

	list, err := h.book(user.ID).List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []models.Address{}
	}
	c.JSON(http.StatusOK, list)
}

// POST /api/addresses ; isDefault=true passe par la promotion.
func (h *Handler) CreateAddress(c *gin.Context) {
	user, ok := buyer(c)
	if !ok {
		return
	}

	var draft models.Address
	if err := c.ShouldBindJSON(&draft); err != nil {
		abort(c, http.StatusBadRequest, CodeValidation, "Données invalides: "+err.Error())
		return
	}
	if err := address.Validate(draft); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	book := h.book(user.ID)
	makeDefault := draft.IsDefault
	draft.IsDefault = false

	created, err := book.Create(ctx, draft)
	if err != nil {
		respondError(c, err)
		return
	}
	if makeDefault {
		if err := book.Promote(ctx, created.ID); err != nil {
			respondError(c, err)
			return
		}
		created.IsDefault = true
	}

	log.Printf("📦 Adresse %s créée pour %s", created.ID, user.ID)
	c.JSON(http.StatusCreated, created)
}

// PUT /api/addresses/:id
func (h *Handler) UpdateAddress(c *gin.Context) {
	user, ok := buyer(c)
	if !ok {
		return
	}

	var upd models.AddressUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		abort(c, http.StatusBadRequest, CodeValidation, "Données invalides: "+err.Error())
		return
	}

	updated, err := h.book(user.ID).Update(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
