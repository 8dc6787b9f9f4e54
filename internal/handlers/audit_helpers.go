package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func requestIDFromContext(c *gin.Context) string {
	if rid := c.GetHeader("X-Request-Id"); rid != "" {
		return rid
	}
	return uuid.NewString()
}

func userIDFromContext(c *gin.Context) *int64 {
	v, ok := c.Get("userID")
	if !ok {
		return nil
	}
	id, ok := v.(int)
	if !ok || id == 0 {
		return nil
	}
	id64 := int64(id)
	return &id64
}
