package middleware

import (
	"net/http"
	"slices"

	"github.com/code-100-precent/LingVoice/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CorsMiddleware handles cross-origin resource sharing. An empty allow list
// accepts any origin.
func CorsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		switch {
		case origin == "":
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, origin) || slices.Contains(allowedOrigins, "*"):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin") // Avoid cache pollution
		default:
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Origin, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Type")

		// Handle preflight requests
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// WithGormDB injects the database handle models.AuthRequired reads.
func WithGormDB(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(models.DbField, db)
		c.Next()
	}
}
