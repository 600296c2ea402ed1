package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-core/internal/apperr"
	"chat-core/internal/auth"
)

// UserIDKey is the gin context key holding the caller's uuid.UUID.
const UserIDKey = "userID"

// AuthMiddleware validates the bearer token and stores the resolved user id.
func AuthMiddleware(resolver auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization", "code": "unauthorized"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header", "code": "unauthorized"})
			return
		}

		userID, err := resolver.ResolveIdentity(c.Request.Context(), parts[1])
		if err != nil {
			kind := apperr.KindOf(err)
			if kind == apperr.KindInternal {
				log.Printf("auth identity resolution failed path=%s: %v", c.FullPath(), err)
			}
			c.AbortWithStatusJSON(apperr.HTTPStatus(kind), gin.H{"error": apperr.Message(err), "code": apperr.Code(kind)})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}
