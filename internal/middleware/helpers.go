package middleware

import "github.com/gin-gonic/gin"

// GetUserID gets the authenticated user id from context.
func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return "", false
	}
	userID, ok := v.(string)
	return userID, ok && userID != ""
}

// MustGetUserID gets the authenticated user id from context or panics.
// Handlers behind Auth() can rely on it being present.
func MustGetUserID(c *gin.Context) string {
	userID, exists := GetUserID(c)
	if !exists {
		panic("user_id not found in context")
	}
	return userID
}
