package utils

import "github.com/gin-gonic/gin"

// UserHeader carries the caller's id, set by the upstream gateway
const UserHeader = "X-User-ID"

const userIDKey = "user_id"

// SetUserID stores the authenticated caller on the request context
func SetUserID(c *gin.Context, userID string) {
	c.Set(userIDKey, userID)
}

// UserID returns the authenticated caller, or "" when none was set
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
