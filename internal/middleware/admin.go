package middleware

import (
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework

	"github.com/The-Quan/atm-banking-2/internal/ledger" // User directory
)

// AdminOnlyMiddleware checks the user's role from the store on each request
func AdminOnlyMiddleware(users ledger.UserDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c) // Get claims from context
		// Check if claims exist in context
		if !ok {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": "UNAUTHORIZED"})
			return
		}
		user, err := users.GetUser(c.Request.Context(), claims.UserID) // Fetch user from the store
		// If user not found, any error, or not an admin, abort with forbidden status
		if err != nil || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required", "code": "FORBIDDEN"})
			return
		}
		c.Next()
	}
}
