package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-core/internal/authority"
	"chat-core/internal/chats"
	"chat-core/internal/models"
	"chat-core/internal/telemetry"
)

// ChatHandler manages chat lifecycle and administration endpoints.
type ChatHandler struct {
	chats *chats.Service
	auth  *authority.Authority
	audit *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatSvc *chats.Service, auth *authority.Authority, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{chats: chatSvc, auth: auth, audit: audit}
}

// CreateDirect handles POST /chats/direct.
func (h *ChatHandler) CreateDirect(c *gin.Context) {
	var req struct {
		UserID uuid.UUID `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	chat, created, err := h.chats.CreateDirect(c.Request.Context(), currentUser(c), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"chat": chat})
}

type titleRequest struct {
	Title string `json:"title" binding:"required"`
}

// CreateGroup handles POST /chats/group.
func (h *ChatHandler) CreateGroup(c *gin.Context) {
	h.create(c, h.chats.CreateGroup)
}

// CreateChannel handles POST /chats/channel.
func (h *ChatHandler) CreateChannel(c *gin.Context) {
	h.create(c, h.chats.CreateChannel)
}

func (h *ChatHandler) create(c *gin.Context, fn func(ctx context.Context, owner uuid.UUID, title string) (models.Chat, error)) {
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	chat, err := fn(c.Request.Context(), currentUser(c), req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// ListParticipants handles GET /chats/:chat_id/participants.
func (h *ChatHandler) ListParticipants(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	list, err := h.chats.ListParticipants(c.Request.Context(), currentUser(c), chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": list})
}

// AddParticipant handles POST /chats/:chat_id/participants.
func (h *ChatHandler) AddParticipant(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	var req struct {
		UserID uuid.UUID `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	added, err := h.chats.AddParticipant(c.Request.Context(), currentUser(c), chatID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// RemoveParticipant handles DELETE /chats/:chat_id/participants/:user_id.
func (h *ChatHandler) RemoveParticipant(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	target, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	if err := h.chats.RemoveParticipant(c.Request.Context(), currentUser(c), chatID, target); err != nil {
		respondError(c, err)
		return
	}
	emitAction(c, h.audit, telemetry.ActionRemoveParticipant, chatID, target)
	c.Status(http.StatusNoContent)
}

// Leave handles POST /chats/:chat_id/leave.
func (h *ChatHandler) Leave(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	if err := h.chats.Leave(c.Request.Context(), currentUser(c), chatID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAdmins handles GET /chats/:chat_id/admins.
func (h *ChatHandler) ListAdmins(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	admins, err := h.auth.ListAdmins(c.Request.Context(), chatID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admins": admins})
}

// GrantAdmin handles POST /chats/:chat_id/admins.
func (h *ChatHandler) GrantAdmin(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	var req struct {
		UserID      uuid.UUID               `json:"user_id" binding:"required"`
		Permissions models.AdminPermissions `json:"permissions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	grant, err := h.auth.GrantPermissions(c.Request.Context(), chatID, currentUser(c), req.UserID, req.Permissions.Set())
	if err != nil {
		respondError(c, err)
		return
	}
	emitAction(c, h.audit, telemetry.ActionGrant, chatID, req.UserID)
	c.JSON(http.StatusOK, gin.H{"user_id": grant.UserID, "permissions": grant.Perms.Flags(), "granted_at": grant.GrantedAt})
}

// RevokeAdmin handles DELETE /chats/:chat_id/admins/:user_id.
func (h *ChatHandler) RevokeAdmin(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	target, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	if err := h.auth.Revoke(c.Request.Context(), chatID, currentUser(c), target); err != nil {
		respondError(c, err)
		return
	}
	emitAction(c, h.audit, telemetry.ActionRevoke, chatID, target)
	c.Status(http.StatusNoContent)
}

// Mute handles POST /chats/:chat_id/mutes/:user_id.
func (h *ChatHandler) Mute(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	target, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}
	mute, err := h.auth.Mute(c.Request.Context(), chatID, currentUser(c), target, req.Minutes)
	if err != nil {
		respondError(c, err)
		return
	}
	emitAction(c, h.audit, telemetry.ActionMute, chatID, target)
	c.JSON(http.StatusOK, gin.H{"user_id": mute.UserID, "muted_until": mute.Until})
}

// Unmute handles DELETE /chats/:chat_id/mutes/:user_id.
func (h *ChatHandler) Unmute(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	target, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	if err := h.auth.Unmute(c.Request.Context(), chatID, currentUser(c), target); err != nil {
		respondError(c, err)
		return
	}
	emitAction(c, h.audit, telemetry.ActionUnmute, chatID, target)
	c.Status(http.StatusNoContent)
}

// Pin handles POST /chats/:chat_id/pin.
func (h *ChatHandler) Pin(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	var req struct {
		MessageID uuid.UUID `json:"message_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.chats.Pin(c.Request.Context(), currentUser(c), chatID, req.MessageID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Unpin handles DELETE /chats/:chat_id/pin.
func (h *ChatHandler) Unpin(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	if err := h.chats.Unpin(c.Request.Context(), currentUser(c), chatID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetVisibility handles POST /chats/:chat_id/visibility.
func (h *ChatHandler) SetVisibility(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	var req struct {
		Public bool   `json:"public"`
		Handle string `json:"handle"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	chat, err := h.chats.SetVisibility(c.Request.Context(), currentUser(c), chatID, req.Public, req.Handle)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// JoinPublic handles POST /chats/join.
func (h *ChatHandler) JoinPublic(c *gin.Context) {
	var req struct {
		Handle string `json:"handle" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	chat, err := h.chats.JoinPublic(c.Request.Context(), currentUser(c), req.Handle)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// List handles GET /chats. include_unread=true adds per-chat unread counts.
func (h *ChatHandler) List(c *gin.Context) {
	includeUnread := false
	if raw := c.Query("include_unread"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "invalid include_unread")
			return
		}
		includeUnread = parsed
	}
	list, err := h.chats.ListChats(c.Request.Context(), currentUser(c), includeUnread)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": list})
}

// SearchPublic handles GET /chats/public_search?handle=.
func (h *ChatHandler) SearchPublic(c *gin.Context) {
	found, err := h.chats.SearchPublic(c.Request.Context(), c.Query("handle"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": found})
}

// ClearHistory handles POST /chats/:chat_id/clear.
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	actor := currentUser(c)
	n, err := h.chats.ClearMessages(c.Request.Context(), actor, chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	emitAction(c, h.audit, telemetry.ActionClearHistory, chatID, actor)
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
