package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docxingest/internal/service"
)

const (
	ContextKeyOperator = "operator"
	ContextKeyClaims   = "claims"
)

// AuthMiddleware returns Gin middleware that validates operator JWTs.
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "UNAUTHORIZED", "message": "missing or invalid authorization header"},
			})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "UNAUTHORIZED", "message": "invalid or expired token"},
			})
			return
		}

		c.Set(ContextKeyOperator, claims.Operator)
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetOperator returns the authenticated operator name, or "".
func GetOperator(c *gin.Context) string {
	val, exists := c.Get(ContextKeyOperator)
	if !exists {
		return ""
	}
	return val.(string)
}
