// Package cache regroupe tout ce que le service garde dans Redis : le panier,
// le catalogue de coupons, les verrous de commit et les compteurs de rate limit.
package cache

import (
	"errors"
	"fmt"
)

var (
	ErrCacheMiss   = errors.New("cache miss")
	ErrLockHeld    = errors.New("verrou déjà détenu")
	ErrRateLimited = errors.New("trop de requêtes")
)

func cartKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

func commitLockKey(gatewayOrderID string) string {
	return fmt.Sprintf("commit_lock:%s", gatewayOrderID)
}

func couponApplyKey(userID string) string {
	return fmt.Sprintf("coupon_apply:%s", userID)
}

const couponCatalogKey = "coupons:public"
