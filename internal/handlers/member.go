package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chat-core/internal/models"
)

// GetNote handles GET /chats/:chat_id/member/note.
func (h *ChatHandler) GetNote(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	note, err := h.chats.Note(c.Request.Context(), currentUser(c), chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": note})
}

// SetNote handles POST /chats/:chat_id/member/note.
func (h *ChatHandler) SetNote(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.chats.SetNote(c.Request.Context(), currentUser(c), chatID, req.Note); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearNote handles DELETE /chats/:chat_id/member/note.
func (h *ChatHandler) ClearNote(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	if err := h.chats.ClearNote(c.Request.Context(), currentUser(c), chatID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetNotify handles GET /chats/:chat_id/member/notify.
func (h *ChatHandler) GetNotify(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	prefs, err := h.chats.NotifyPrefs(c.Request.Context(), currentUser(c), chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notify": prefs})
}

// SetNotify handles POST /chats/:chat_id/member/notify.
func (h *ChatHandler) SetNotify(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	var req struct {
		MuteForever bool       `json:"mute_forever"`
		MuteUntil   *time.Time `json:"mute_until"`
		NotifyType  string     `json:"notify_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	prefs, err := h.chats.SetNotifyPrefs(c.Request.Context(), currentUser(c), chatID, models.NotifyPrefs{
		MuteForever: req.MuteForever,
		MuteUntil:   req.MuteUntil,
		NotifyType:  req.NotifyType,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notify": prefs})
}
