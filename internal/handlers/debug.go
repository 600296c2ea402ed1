package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chat-core/internal/receipts"
	"chat-core/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, engine *receipts.Engine, purgeAfter time.Duration, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/admin/reads/purge", func(c *gin.Context) {
		olderThan := purgeAfter
		if raw := c.Query("older_than"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				badRequest(c, "invalid older_than")
				return
			}
			olderThan = parsed
		}
		deleted, err := engine.PurgePerReader(c.Request.Context(), olderThan)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted, "older_than": olderThan.String()})
	})
}
