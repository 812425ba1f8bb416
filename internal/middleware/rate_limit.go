package middleware

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"cedra_checkout/internal/cache"

	"github.com/gin-gonic/gin"
)

// CouponApplyRateLimit limite POST /api/coupons/apply par utilisateur (énumération de codes).
// Si Redis est indisponible, la requête passe.
func CouponApplyRateLimit(limiter *cache.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.Next()
			return
		}

		remaining, err := limiter.AllowCouponApply(c.Request.Context(), userID)
		switch {
		case errors.Is(err, cache.ErrRateLimited):
			ttl := limiter.RetryAfter(c.Request.Context(), userID)
			c.Header("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("Trop de tentatives de coupon. Réessayez dans %d secondes", int(ttl.Seconds())),
				"code":        "rate_limited",
				"retry_after": int(ttl.Seconds()),
			})
			return
		case err != nil:
			log.Printf("⚠️ Rate limit coupon indisponible: %v", err)
		default:
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Limit()))
			c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		}
		c.Next()
	}
}
