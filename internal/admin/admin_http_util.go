package admin

import (
	"github.com/gin-gonic/gin"
)

const adminIdentityKey = "admin_identity"

func writeAPIError(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func getAdminIdentity(c *gin.Context) string {
	value, ok := c.Get(adminIdentityKey)
	if !ok {
		return ""
	}
	identity, _ := value.(string)
	return identity
}

func noCacheHeaders(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}
