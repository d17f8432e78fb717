package utils

import "github.com/gin-gonic/gin"

// Context keys set by the session gateway.
const (
	ContextUserIDKey    = "user_id"
	ContextSessionIDKey = "session_id"
)

// UserID returns the authenticated user id stored on c.
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextUserIDKey)
	return id, id != ""
}
