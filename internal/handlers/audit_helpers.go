package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-core/internal/apperr"
	"chat-core/internal/middleware"
	"chat-core/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// currentUser returns the id stored by the auth middleware.
func currentUser(c *gin.Context) uuid.UUID {
	if val, ok := c.Get(middleware.UserIDKey); ok {
		if id, ok := val.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func userIDFromContext(c *gin.Context) *string {
	id := currentUser(c)
	if id == uuid.Nil {
		return nil
	}
	value := id.String()
	return &value
}

func emitAction(c *gin.Context, audit *telemetry.AuditEmitter, action string, chatID, targetID uuid.UUID) {
	if audit == nil {
		return
	}
	audit.Action(c.Request.Context(), action, chatID, targetID, requestIDFromContext(c), userIDFromContext(c))
}

// respondError renders an apperr kind as status plus {"error","code"}.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		log.Printf("request failed method=%s path=%s request_id=%s: %v",
			c.Request.Method, c.FullPath(), requestIDFromContext(c), err)
	}
	c.JSON(apperr.HTTPStatus(kind), gin.H{"error": apperr.Message(err), "code": apperr.Code(kind)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": apperr.Code(apperr.KindValidation)})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
