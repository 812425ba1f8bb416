package handlers

import (
	"errors"
	"log"
	"net/http"

	"cedra_checkout/internal/address"
	"cedra_checkout/internal/coupon"
	"cedra_checkout/internal/gateway"
	"cedra_checkout/internal/pricing"
	"cedra_checkout/internal/settlement"
	"cedra_checkout/internal/store"

	"github.com/gin-gonic/gin"
)

// Codes d'erreur renvoyés dans {"error", "code"}.
const (
	CodeValidation         = "validation"
	CodeUnauthenticated    = "unauthenticated"
	CodeCouponInvalid      = "coupon_invalid"
	CodeCouponExpired      = "coupon_expired"
	CodeGatewayUnavailable = "gateway_unavailable"
	CodeProofInvalid       = "proof_invalid"
	CodeBreakdownMismatch  = "breakdown_mismatch"
	CodePersistenceFailed  = "persistence_failed"
	CodeNotFound           = "not_found"
	CodeCommitInProgress   = "commit_in_progress"
)

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

// respondError traduit une erreur métier en réponse HTTP.
func respondError(c *gin.Context, err error) {
	var verr *address.ValidationError

	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "code": CodeValidation, "fields": verr.Fields})
	case errors.Is(err, coupon.ErrExpiredCoupon):
		abort(c, http.StatusBadRequest, CodeCouponExpired, couponMessage(err))
	case errors.Is(err, coupon.ErrInvalidCoupon):
		abort(c, http.StatusBadRequest, CodeCouponInvalid, couponMessage(err))
	case errors.Is(err, pricing.ErrBreakdownMismatch):
		abort(c, http.StatusBadRequest, CodeBreakdownMismatch, err.Error())
	case errors.Is(err, gateway.ErrProofInvalid):
		abort(c, http.StatusBadRequest, CodeProofInvalid, "Preuve de paiement invalide")
	case errors.Is(err, settlement.ErrInvalidDraft):
		abort(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, address.ErrUnknownAddress):
		abort(c, http.StatusNotFound, CodeNotFound, "Ressource introuvable")
	case errors.Is(err, store.ErrConflict), errors.Is(err, address.ErrPromotionBusy):
		abort(c, http.StatusConflict, CodeValidation, err.Error())
	case errors.Is(err, settlement.ErrCommitInProgress):
		abort(c, http.StatusConflict, CodeCommitInProgress, "Paiement en cours de traitement, réessayez")
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		log.Printf("⚠️ Passerelle indisponible: %v", err)
		abort(c, http.StatusBadGateway, CodeGatewayUnavailable, "Passerelle de paiement indisponible")
	default:
		log.Printf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
		abort(c, http.StatusInternalServerError, CodePersistenceFailed, "Erreur serveur, réessayez")
	}
}

func couponMessage(err error) string {
	var rejection *coupon.Rejection
	if errors.As(err, &rejection) {
		return rejection.Reason
	}
	return err.Error()
}
