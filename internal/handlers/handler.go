// Package handlers expose l'API REST du checkout.
package handlers

import (
	"net/http"

	"cedra_checkout/internal/address"
	"cedra_checkout/internal/cache"
	"cedra_checkout/internal/coupon"
	"cedra_checkout/internal/middleware"
	"cedra_checkout/internal/models"
	"cedra_checkout/internal/settlement"
	"cedra_checkout/internal/store"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	store     store.Store
	coupons   *coupon.Engine
	committer *settlement.Committer
	cart      *cache.CartStore

	// AddressLock sérialise les promotions d'adresse par utilisateur ; nil = sans verrou.
	AddressLock address.Locker
}

func New(s store.Store, coupons *coupon.Engine, committer *settlement.Committer, cart *cache.CartStore) *Handler {
	return &Handler{store: s, coupons: coupons, committer: committer, cart: cart}
}

// buyer renvoie l'utilisateur authentifié, ou répond 401.
func buyer(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		abort(c, http.StatusUnauthorized, CodeUnauthenticated, "non authentifié")
	}
	return user, ok
}

func (h *Handler) book(userID string) address.StoreBook {
	return address.StoreBook{Store: h.store, UserID: userID, Lock: h.AddressLock}
}
