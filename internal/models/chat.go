package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatKind is fixed when a chat is created.
type ChatKind string

const (
	ChatDirect  ChatKind = "direct"
	ChatGroup   ChatKind = "group"
	ChatChannel ChatKind = "channel"
)

func (k ChatKind) Valid() bool {
	switch k {
	case ChatDirect, ChatGroup, ChatChannel:
		return true
	}
	return false
}

// Chat is a direct conversation, a group or a broadcast channel.
type Chat struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Kind            ChatKind   `db:"kind" json:"kind"`
	OwnerID         *uuid.UUID `db:"owner_id" json:"owner_id,omitempty"`
	Title           string     `db:"title" json:"title,omitempty"`
	IsPublic        bool       `db:"is_public" json:"is_public"`
	PublicHandle    *string    `db:"public_handle" json:"public_handle,omitempty"`
	PinnedMessageID *uuid.UUID `db:"pinned_message_id" json:"pinned_message_id,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// IsOwner reports whether userID owns the chat. Direct chats have no owner.
func (c Chat) IsOwner(userID uuid.UUID) bool {
	return c.OwnerID != nil && *c.OwnerID == userID
}

// ChatMeta is the authorization-relevant slice of a chat.
type ChatMeta struct {
	Kind     ChatKind
	OwnerID  *uuid.UUID
	PinnedID *uuid.UUID
}

func (c Chat) Meta() ChatMeta {
	return ChatMeta{Kind: c.Kind, OwnerID: c.OwnerID, PinnedID: c.PinnedMessageID}
}

// User is the minimal identity the core needs: an id and a username for
// mention resolution.
type User struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	DisplayName string    `db:"display_name" json:"display_name,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Participant is the membership edge that grants visibility into a chat.
type Participant struct {
	ChatID   uuid.UUID `db:"chat_id" json:"chat_id"`
	UserID   uuid.UUID `db:"user_id" json:"user_id"`
	Username string    `db:"username" json:"username"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// Member holds per-user chat state. It is created lazily on first interaction.
type Member struct {
	ChatID            uuid.UUID  `db:"chat_id" json:"chat_id"`
	UserID            uuid.UUID  `db:"user_id" json:"user_id"`
	LastReadMessageID *uuid.UUID `db:"last_read_message_id" json:"last_read_message_id,omitempty"`
	Note              string     `db:"note" json:"note,omitempty"`
	MuteForever       bool       `db:"mute_forever" json:"mute_forever"`
	NotifyMuteUntil   *time.Time `db:"notify_mute_until" json:"mute_until,omitempty"`
	NotifyType        string     `db:"notify_type" json:"notify_type"`
}

// Notification levels a member can pick for a chat.
const (
	NotifyAll      = "all"
	NotifyMentions = "mentions"
	NotifyNone     = "none"
)

func ValidNotifyType(t string) bool {
	switch t {
	case NotifyAll, NotifyMentions, NotifyNone:
		return true
	}
	return false
}

// NotifyPrefs is the member's notification preference. It is advisory for
// clients and independent of the admin-imposed Mute.
type NotifyPrefs struct {
	MuteForever bool       `json:"mute_forever"`
	MuteUntil   *time.Time `json:"mute_until"`
	NotifyType  string     `json:"notify_type"`
}

// Prefs returns the member's preferences with defaults applied.
func (m Member) Prefs() NotifyPrefs {
	prefs := NotifyPrefs{MuteForever: m.MuteForever, MuteUntil: m.NotifyMuteUntil, NotifyType: m.NotifyType}
	if prefs.NotifyType == "" {
		prefs.NotifyType = NotifyAll
	}
	return prefs
}

// Silenced reports whether notifications are suppressed at now.
func (p NotifyPrefs) Silenced(now time.Time) bool {
	return p.MuteForever || p.NotifyType == NotifyNone || (p.MuteUntil != nil && now.Before(*p.MuteUntil))
}

// ChatSummary is one entry of a user's chat list.
type ChatSummary struct {
	Chat
	Unread *int `json:"unread,omitempty"`
}

// Mute blocks sends while now is before Until.
type Mute struct {
	ChatID uuid.UUID `db:"chat_id" json:"chat_id"`
	UserID uuid.UUID `db:"user_id" json:"user_id"`
	Until  time.Time `db:"muted_until" json:"muted_until"`
}

// Active reports whether the mute still applies at now. Expired rows are inert.
func (m Mute) Active(now time.Time) bool {
	return now.Before(m.Until)
}
