package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cedra_checkout/internal/cache"
	"cedra_checkout/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func authRouter() *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthRequired(secret), func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.JSON(http.StatusOK, user)
	})
	return r
}

func get(r http.Handler, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired_ValidToken(t *testing.T) {
	token, err := IssueToken(secret, models.User{ID: "user-1", Email: "asha@example.com"}, time.Hour)
	require.NoError(t, err)

	w := get(authRouter(), "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "asha@example.com", user.Email)
}

func TestRequireAdmin(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthRequired(secret), RequireAdmin, func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.JSON(http.StatusOK, user)
	})

	customer, _ := IssueToken(secret, models.User{ID: "user-1"}, time.Hour)
	w := get(r, "Bearer "+customer)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"forbidden"`)

	admin, _ := IssueToken(secret, models.User{ID: "admin-1", Role: models.RoleAdmin}, time.Hour)
	w = get(r, "Bearer "+admin)
	require.Equal(t, http.StatusOK, w.Code)
	var user models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, models.RoleAdmin, user.Role)
}

func TestAuthRequired_Rejections(t *testing.T) {
	expired, _ := IssueToken(secret, models.User{ID: "user-1"}, -time.Minute)
	wrongKey, _ := IssueToken([]byte("other"), models.User{ID: "user-1"}, time.Hour)
	noUser, _ := IssueToken(secret, models.User{}, time.Hour)
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: "user-1"}).SignedString(secret)

	tests := map[string]string{
		"absent":       "",
		"format":       "Token abc",
		"expiré":       "Bearer " + expired,
		"mauvaise clé": "Bearer " + wrongKey,
		"sans user_id": "Bearer " + noUser,
		"HS512":        "Bearer " + hs512,
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			w := get(authRouter(), header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"code":"unauthenticated"`)
		})
	}
}

func TestCouponApplyRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := cache.NewRateLimiter(client, 2, time.Minute)

	r := gin.New()
	r.POST("/apply", func(c *gin.Context) { c.Set("user_id", "user-1") }, CouponApplyRateLimit(limiter), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/apply", nil))
		return w
	}

	first := do()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, do().Code)

	blocked := do()
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Contains(t, blocked.Body.String(), `"code":"rate_limited"`)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, do().Code)
}

func TestCouponApplyRateLimit_RedisDownLetsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := cache.NewRateLimiter(client, 1, time.Minute)
	mr.Close()

	r := gin.New()
	r.POST("/apply", func(c *gin.Context) { c.Set("user_id", "user-1") }, CouponApplyRateLimit(limiter), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/apply", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
