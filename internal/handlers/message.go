package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-core/internal/authority"
	"chat-core/internal/mentions"
	"chat-core/internal/messaging"
	"chat-core/internal/protocol"
	"chat-core/internal/receipts"
)

// MessageHandler serves message, read-state and mention endpoints.
type MessageHandler struct {
	messages *messaging.Service
	receipts *receipts.Engine
	mentions *mentions.Recorder
	auth     *authority.Authority
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages *messaging.Service, engine *receipts.Engine, recorder *mentions.Recorder, auth *authority.Authority) *MessageHandler {
	return &MessageHandler{messages: messages, receipts: engine, mentions: recorder, auth: auth}
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		badRequest(c, "invalid limit")
		return 0, false
	}
	return limit, true
}

// History handles GET /chats/:chat_id/messages?before=&limit=.
func (h *MessageHandler) History(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			badRequest(c, "invalid before")
			return
		}
		before = &parsed
	}

	msgs, err := h.messages.History(c.Request.Context(), currentUser(c), chatID, before, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Post handles POST /chats/:chat_id/messages. The body is either
// {"text": ...} or a tagged {"content": {...}}.
func (h *MessageHandler) Post(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	var req struct {
		Text      string          `json:"text"`
		Content   json.RawMessage `json:"content"`
		ReplyToID *uuid.UUID      `json:"reply_to_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	content, err := protocol.SendMessage{ChatID: chatID, Text: req.Text, Content: req.Content}.Body()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), currentUser(c), chatID, content, req.ReplyToID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// Edit handles PATCH /messages/:message_id.
func (h *MessageHandler) Edit(c *gin.Context) {
	messageID, ok := uuidParam(c, "message_id")
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	msg, err := h.messages.Edit(c.Request.Context(), currentUser(c), messageID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

type idsRequest struct {
	MessageIDs []uuid.UUID `json:"message_ids" binding:"required"`
}

// Delete handles POST /chats/:chat_id/messages/delete.
func (h *MessageHandler) Delete(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	deleted, err := h.messages.Delete(c.Request.Context(), currentUser(c), chatID, req.MessageIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// Forward handles POST /chats/:chat_id/forward; chat_id is the source.
func (h *MessageHandler) Forward(c *gin.Context) {
	fromChatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	var req struct {
		ToChatID   uuid.UUID   `json:"to_chat_id" binding:"required"`
		MessageIDs []uuid.UUID `json:"message_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	msgs, err := h.messages.Forward(c.Request.Context(), currentUser(c), fromChatID, req.ToChatID, req.MessageIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"messages": msgs})
}

// MarkRead handles POST /chats/:chat_id/read.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	var req protocol.MarkAsRead
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ids := req.IDs()
	if len(ids) == 0 {
		badRequest(c, "last_read_message_id is required")
		return
	}
	if err := h.receipts.MarkRead(c.Request.Context(), currentUser(c), chatID, ids); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Unread handles GET /chats/:chat_id/unread.
func (h *MessageHandler) Unread(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	n, err := h.receipts.UnreadCount(c.Request.Context(), currentUser(c), chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "unread": n})
}

// Readers handles GET /messages/:message_id/reads.
func (h *MessageHandler) Readers(c *gin.Context) {
	messageID, ok := uuidParam(c, "message_id")
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	readers, err := h.receipts.ListReaders(c.Request.Context(), currentUser(c), messageID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"readers": readers})
}

// ListMentions handles GET /chats/:chat_id/mentions.
func (h *MessageHandler) ListMentions(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	userID := currentUser(c)
	if _, err := h.auth.RequireMember(c.Request.Context(), chatID, userID); err != nil {
		respondError(c, err)
		return
	}
	records, err := h.mentions.List(c.Request.Context(), chatID, userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mentions": records})
}

// ClearMentions handles DELETE /chats/:chat_id/mentions.
func (h *MessageHandler) ClearMentions(c *gin.Context) {
	chatID, ok := uuidParam(c, "chat_id")
	if !ok {
		return
	}
	userID := currentUser(c)
	if _, err := h.auth.RequireMember(c.Request.Context(), chatID, userID); err != nil {
		respondError(c, err)
		return
	}
	cleared, err := h.mentions.Clear(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}
