// Package middleware provides the Gin middleware chain of the development
// admin API: request IDs, request logging, metrics, security headers, bearer
// authentication and audit recording.
//
// Ordering is fixed by devapi.NewRouter:
//
//	Recovery → RequestID → Metrics → Logger → SecurityHeaders → BearerAuth → Audit → Handler
//
// Audit runs innermost so that only authenticated writes that succeeded are
// recorded.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/schoolbooks/admin-console/internal/session"
)

// Context keys set by BearerAuth.
const (
	UserIDKey     = "user_id"
	RoleKey       = "role"
	AuthMethodKey = "auth_method"
)

// AuthConfig configures BearerAuth. At least one of Token and JWTSecret
// should be set; with neither every request is rejected.
type AuthConfig struct {
	// Token is a fixed bearer token accepted as StaticUserID.
	Token        string
	StaticUserID string
	// JWTSecret verifies HS256 tokens issued by session.IssueToken.
	JWTSecret string
}

// BearerAuth rejects requests without a valid Authorization: Bearer header
// with 401 and the standard error envelope.
func BearerAuth(cfg AuthConfig) gin.HandlerFunc {
	if cfg.StaticUserID == "" {
		cfg.StaticUserID = "dev-admin"
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			AbortWithError(c, http.StatusUnauthorized, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			AbortWithError(c, http.StatusUnauthorized, "Authorization header must start with 'Bearer '")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			AbortWithError(c, http.StatusUnauthorized, "Authorization token is empty")
			return
		}

		if cfg.Token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) == 1 {
			c.Set(UserIDKey, cfg.StaticUserID)
			c.Set(RoleKey, "admin")
			c.Set(AuthMethodKey, "token")
			c.Next()
			return
		}

		if cfg.JWTSecret != "" {
			if claims, err := session.ValidateToken(cfg.JWTSecret, token); err == nil {
				c.Set(UserIDKey, claims.UserID)
				c.Set(RoleKey, claims.Role)
				c.Set(AuthMethodKey, "jwt")
				c.Next()
				return
			}
		}

		AbortWithError(c, http.StatusUnauthorized, "Invalid or expired token")
	}
}

// AbortWithError stops the chain with the admin API error envelope:
//
//	{"success": false, "error": {"message": "..."}}
func AbortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   gin.H{"message": message},
	})
}
