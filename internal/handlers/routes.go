package handlers

import "github.com/gin-gonic/gin"

// Handlers groups everything mounted behind the bearer middleware.
type Handlers struct {
	Chats    *ChatHandler
	Messages *MessageHandler
	Presence *PresenceHandler
}

// Register mounts the REST surface on r.
func (h Handlers) Register(r gin.IRouter) {
	r.POST("/chats/direct", h.Chats.CreateDirect)
	r.POST("/chats/group", h.Chats.CreateGroup)
	r.POST("/chats/channel", h.Chats.CreateChannel)
	r.POST("/chats/join", h.Chats.JoinPublic)
	r.GET("/chats", h.Chats.List)
	r.GET("/chats/public_search", h.Chats.SearchPublic)

	r.GET("/chats/:chat_id/participants", h.Chats.ListParticipants)
	r.POST("/chats/:chat_id/participants", h.Chats.AddParticipant)
	r.DELETE("/chats/:chat_id/participants/:user_id", h.Chats.RemoveParticipant)
	r.POST("/chats/:chat_id/leave", h.Chats.Leave)

	r.GET("/chats/:chat_id/admins", h.Chats.ListAdmins)
	r.POST("/chats/:chat_id/admins", h.Chats.GrantAdmin)
	r.DELETE("/chats/:chat_id/admins/:user_id", h.Chats.RevokeAdmin)
	r.POST("/chats/:chat_id/mutes/:user_id", h.Chats.Mute)
	r.DELETE("/chats/:chat_id/mutes/:user_id", h.Chats.Unmute)

	r.POST("/chats/:chat_id/pin", h.Chats.Pin)
	r.DELETE("/chats/:chat_id/pin", h.Chats.Unpin)
	r.POST("/chats/:chat_id/visibility", h.Chats.SetVisibility)
	r.POST("/chats/:chat_id/clear", h.Chats.ClearHistory)

	r.GET("/chats/:chat_id/member/note", h.Chats.GetNote)
	r.POST("/chats/:chat_id/member/note", h.Chats.SetNote)
	r.DELETE("/chats/:chat_id/member/note", h.Chats.ClearNote)
	r.GET("/chats/:chat_id/member/notify", h.Chats.GetNotify)
	r.POST("/chats/:chat_id/member/notify", h.Chats.SetNotify)

	r.GET("/chats/:chat_id/messages", h.Messages.History)
	r.POST("/chats/:chat_id/messages", h.Messages.Post)
	r.POST("/chats/:chat_id/messages/delete", h.Messages.Delete)
	r.POST("/chats/:chat_id/forward", h.Messages.Forward)
	r.PATCH("/messages/:message_id", h.Messages.Edit)

	r.POST("/chats/:chat_id/read", h.Messages.MarkRead)
	r.GET("/chats/:chat_id/unread", h.Messages.Unread)
	r.GET("/messages/:message_id/reads", h.Messages.Readers)
	r.GET("/chats/:chat_id/mentions", h.Messages.ListMentions)
	r.DELETE("/chats/:chat_id/mentions", h.Messages.ClearMentions)

	r.GET("/users/:user_id/presence", h.Presence.Get)
}
