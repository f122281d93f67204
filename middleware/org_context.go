package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrganizationContext reads the tenant headers and stores them in the gin
// context for downstream handlers. Every tenant-scoped route sits behind it.
func OrganizationContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.GetHeader("X-Organization-ID")
		if orgID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-Organization-ID header is required"})
			c.Abort()
			return
		}
		if _, err := uuid.Parse(orgID); err != nil {
			log.Printf("[OrganizationContext] Rejected malformed organization id %q: %s", orgID, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-Organization-ID must be a valid UUID"})
			c.Abort()
			return
		}

		c.Set("organizationID", orgID)
		// The user header is optional; execution falls back to rule-level
		// assignee config when it is absent.
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set("userID", userID)
		}

		c.Next()
	}
}
