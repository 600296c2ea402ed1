package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-core/internal/ws"
)

// PresenceHandler exposes the presence tracker over REST.
type PresenceHandler struct {
	presence *ws.Presence
}

func NewPresenceHandler(presence *ws.Presence) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// Get handles GET /users/:user_id/presence. Users never seen report offline
// with no last_seen.
func (h *PresenceHandler) Get(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	state, found := h.presence.Get(c.Request.Context(), userID)
	resp := gin.H{"user_id": userID, "online": state.Online, "last_seen": nil}
	if found && !state.LastSeen.IsZero() {
		resp["last_seen"] = state.LastSeen
	}
	c.JSON(http.StatusOK, resp)
}
