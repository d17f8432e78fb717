package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends a structured error response. code is a stable machine-readable
// identifier clients branch on (for example "auth_expired").
func JSONError(c *gin.Context, status int, code string, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"error":   code,
	})
}

// AbortWithError is JSONError for middleware that must stop the chain.
func AbortWithError(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status":  status,
		"message": message,
		"error":   code,
	})
}
