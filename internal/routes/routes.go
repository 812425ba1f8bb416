package routes

import (
	"net/http"
	"time"

	"cedra_checkout/internal/cache"
	"cedra_checkout/internal/handlers"
	"cedra_checkout/internal/metrics"
	"cedra_checkout/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Handler     *handlers.Handler
	JWTSecret   []byte
	CouponLimit *cache.RateLimiter
	Metrics     *metrics.Metrics
	CORSOrigins []string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"X-RateLimit-Remaining", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := d.Handler
	api := r.Group("/api")

	// Public
	api.GET("/coupons", h.ListCoupons)

	auth := api.Group("")
	auth.Use(middleware.AuthRequired(d.JWTSecret))
	{
		auth.GET("/addresses", h.ListAddresses)
		auth.POST("/addresses", h.CreateAddress)
		auth.PUT("/addresses/:id", h.UpdateAddress)

		if d.CouponLimit != nil {
			auth.POST("/coupons/apply", middleware.CouponApplyRateLimit(d.CouponLimit), h.ApplyCoupon)
		} else {
			auth.POST("/coupons/apply", h.ApplyCoupon)
		}

		auth.POST("/payment/create-order", h.CreatePaymentOrder)
		auth.POST("/payment/verify", h.VerifyPayment)

		auth.POST("/orders", h.PlaceOrder)
		auth.GET("/orders/:id", h.GetOrder)

		auth.GET("/cart", h.GetCart)
		auth.PUT("/cart", h.ReplaceCart)
		auth.DELETE("/cart", h.ClearCart)
	}

	admin := auth.Group("/admin")
	admin.Use(middleware.RequireAdmin)
	{
		admin.GET("/coupons", h.GetAllCoupons)
		admin.POST("/coupons", h.CreateCoupon)
		admin.PUT("/coupons/:code", h.UpdateCoupon)
		admin.DELETE("/coupons/:code", h.DeleteCoupon)
	}
}
