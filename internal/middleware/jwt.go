package middleware

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"cedra_checkout/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims du jeton émis par le fournisseur d'identité.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "unauthenticated"})
}

// AuthRequired valide le Bearer JWT (HS256) et place user_id, email et name dans le contexte gin.
func AuthRequired(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "Token manquant")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			log.Printf("❌ Format Authorization invalide: %v parties", len(parts))
			unauthorized(c, "Format Authorization invalide")
			return
		}

		claims := &Claims{}
		_, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				unauthorized(c, "Token expiré")
				return
			}
			log.Printf("❌ Erreur parsing JWT: %v", err)
			unauthorized(c, "Token invalide")
			return
		}

		if claims.UserID == "" {
			log.Println("❌ user_id manquant dans les claims")
			unauthorized(c, "user_id manquant")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("name", claims.Name)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// CurrentUser relit l'identité posée par AuthRequired.
func CurrentUser(c *gin.Context) (models.User, bool) {
	id := c.GetString("user_id")
	if id == "" {
		return models.User{}, false
	}
	return models.User{ID: id, Email: c.GetString("email"), Name: c.GetString("name"), Role: c.GetString("role")}, true
}

// IssueToken signe un jeton HS256 ; utilisé par les tests et l'outil de réconciliation.
func IssueToken(secret []byte, user models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
