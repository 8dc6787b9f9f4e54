package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"market-chat/internal/telemetry"
)

// RegisterDebugRoutes wires verification endpoints that are only mounted
// when debug routes are enabled in config.
func RegisterDebugRoutes(r gin.IRoutes, audit *telemetry.AuditEmitter) {
	r.GET("/debug/audit-test", func(c *gin.Context) {
		audit.Emit(c.Request.Context(), "INFO", "audit pipeline check", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "emitted"})
	})
}
